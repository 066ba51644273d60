package models

import "time"

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether op is empty (batch form) or a known operation.
func (op Operation) Valid() bool {
	switch op {
	case "", OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncChange is one client-submitted change inside a push batch.
type SyncChange struct {
	EntityType string     `json:"entityType"`
	Operation  Operation  `json:"operation,omitempty"`
	Data       Record     `json:"data"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// PushResult is the response of a push batch.
type PushResult struct {
	Success       bool     `json:"success"`
	Data          []Record `json:"data"`
	SyncTimestamp string   `json:"syncTimestamp"`
}

// PullResult is the response of a pull or pull-pending request.
type PullResult struct {
	Success       bool                `json:"success"`
	Data          map[string][]Record `json:"data"`
	SyncTimestamp string              `json:"syncTimestamp"`
}
