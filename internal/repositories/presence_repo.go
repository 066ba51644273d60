package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "tenantsync:presence:"
	presenceTTL       = 60 * time.Second // Presence expires after 60 seconds without a refresh
	presenceScanCount = 100
)

// RedisPresenceRepository records live real-time connections so connection
// counts span every node sharing the Redis instance.
type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

// SetPresence sets or refreshes the presence of a connection with automatic TTL.
// The gateway refreshes it whenever a client answers a keepalive ping, so the
// ping interval must stay well under the TTL.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now().UTC()
	if presence.Status == "" {
		presence.Status = string(models.StatusOnline)
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(presence.TenantID, presence.ConnectionID)
	err = r.client.Set(ctx, key, data, presenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, tenantID, connectionID string) error {
	err := r.client.Del(ctx, presenceKey(tenantID, connectionID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// CountTenant counts live connections of a tenant across all nodes.
func (r *RedisPresenceRepository) CountTenant(ctx context.Context, tenantID string) (int64, error) {
	keys, err := r.tenantKeys(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// ListTenant returns the presence of every live connection of a tenant.
func (r *RedisPresenceRepository) ListTenant(ctx context.Context, tenantID string) ([]models.Presence, error) {
	keys, err := r.tenantKeys(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []models.Presence{}, nil
	}

	// MGet retrieves all keys in one round trip
	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	out := make([]models.Presence, 0, len(results))
	for _, result := range results {
		// Expired between SCAN and MGET
		data, ok := result.(string)
		if !ok {
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			continue
		}
		out = append(out, presence)
	}

	return out, nil
}

func (r *RedisPresenceRepository) tenantKeys(ctx context.Context, tenantID string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, presenceKey(tenantID, "*"), presenceScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence: %w", err)
	}
	return keys, nil
}

// Helper: build Redis key for presence
func presenceKey(tenantID, connectionID string) string {
	return presenceKeyPrefix + tenantID + ":" + connectionID
}
