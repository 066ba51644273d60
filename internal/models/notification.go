package models

type NotificationType string

const (
	NotificationDataAvailable    NotificationType = "data_available"
	NotificationSyncComplete     NotificationType = "sync_complete"
	NotificationSyncError        NotificationType = "sync_error"
	NotificationConflictDetected NotificationType = "conflict_detected"
)

// Notification describes a sync-relevant event pushed to live clients.
type Notification struct {
	Type       NotificationType `json:"type"`
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entityId,omitempty"`
	Message    string           `json:"message"`
	Timestamp  string           `json:"timestamp"`
	Data       any              `json:"data,omitempty"`
}

// Real-time event names used on the wire.
const (
	EventSyncNotification = "sync_notification"
	EventSyncStatusUpdate = "sync_status_update"
)

// Message is the envelope delivered to a real-time connection.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}
