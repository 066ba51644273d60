package notify

import (
	"fmt"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
)

func DataAvailable(entityType, entityID string, at time.Time) models.Notification {
	return models.Notification{
		Type:       models.NotificationDataAvailable,
		EntityType: entityType,
		EntityID:   entityID,
		Message:    fmt.Sprintf("New %s data available", entityType),
		Timestamp:  models.FormatTime(at),
	}
}

func SyncComplete(entityType, entityID string, at time.Time) models.Notification {
	return models.Notification{
		Type:       models.NotificationSyncComplete,
		EntityType: entityType,
		EntityID:   entityID,
		Message:    fmt.Sprintf("%s sync completed", entityType),
		Timestamp:  models.FormatTime(at),
	}
}

func SyncError(entityType, message string, at time.Time) models.Notification {
	return models.Notification{
		Type:       models.NotificationSyncError,
		EntityType: entityType,
		Message:    message,
		Timestamp:  models.FormatTime(at),
	}
}

// ConflictDetected carries both versions so clients can show what was overridden.
func ConflictDetected(entityType, entityID string, server, client models.Record, at time.Time) models.Notification {
	return models.Notification{
		Type:       models.NotificationConflictDetected,
		EntityType: entityType,
		EntityID:   entityID,
		Message:    fmt.Sprintf("Conflict detected on %s %s", entityType, entityID),
		Timestamp:  models.FormatTime(at),
		Data: map[string]any{
			"serverVersion": server.Version(),
			"clientVersion": client.Version(),
		},
	}
}
