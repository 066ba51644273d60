package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/conflict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tenantsync")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, conflict.ServerWins, cfg.ConflictStrategy)
	assert.False(t, cfg.HonorClientIDs)
	assert.Equal(t, 10*time.Second, cfg.StorageTimeout)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 64, cfg.NotifyQueueSize)
	assert.Equal(t, 4, cfg.PullConcurrency)
	assert.Equal(t, 30*time.Second, cfg.WebSocketPingEvery)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_DIR", "/tmp/tenants")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CONFLICT_STRATEGY", "last-write-wins")
	t.Setenv("SYNC_HONOR_CLIENT_IDS", "true")
	t.Setenv("STORAGE_TIMEOUT", "2s")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "/tmp/tenants", cfg.SQLiteDir)
	assert.Equal(t, conflict.LastWriteWins, cfg.ConflictStrategy)
	assert.True(t, cfg.HonorClientIDs)
	assert.Equal(t, 2*time.Second, cfg.StorageTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"DATABASE_URL": "postgres://x"}},
		{"missing database url", map[string]string{"JWT_SECRET": "s"}},
		{"bad driver", map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "mysql"}},
		{"bad strategy", map[string]string{"JWT_SECRET": "s", "DATABASE_URL": "postgres://x", "CONFLICT_STRATEGY": "newest"}},
		{"bad queue size", map[string]string{"JWT_SECRET": "s", "DATABASE_URL": "postgres://x", "NOTIFY_QUEUE_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"DATABASE_URL", "JWT_SECRET", "STORAGE_DRIVER"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_DRIVER: sqlite\nJWT_SECRET: fromfile\nPULL_CONCURRENCY: 8\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.JWTSecret)
	assert.Equal(t, 8, cfg.PullConcurrency)
}
