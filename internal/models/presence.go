package models

import (
	"time"
)

// Presence marks a live real-time connection of a tenant on some node.
type Presence struct {
	TenantID     string    `json:"tenant_id"`
	ConnectionID string    `json:"connection_id"`
	NodeID       string    `json:"node_id"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
