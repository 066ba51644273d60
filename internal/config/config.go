package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/conflict"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServerPort    string
	StorageDriver string
	DatabaseURL   string
	SQLiteDir     string
	RedisURL      string
	JWTSecret     string

	ConflictStrategy   conflict.Strategy
	HonorClientIDs     bool
	StorageTimeout     time.Duration
	NotifyTimeout      time.Duration
	NotifyQueueSize    int
	PullConcurrency    int
	WebSocketPingEvery time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_DIR", "./data")
	v.SetDefault("CONFLICT_STRATEGY", string(conflict.ServerWins))
	v.SetDefault("SYNC_HONOR_CLIENT_IDS", false)
	v.SetDefault("STORAGE_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_QUEUE_SIZE", 64)
	v.SetDefault("PULL_CONCURRENCY", 4)
	v.SetDefault("WS_PING_INTERVAL", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// LoadConfig reads configuration from the environment, optionally layered over
// the YAML file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	return Load(viper.New())
}

// Load reads configuration through v, which may already carry bound flags.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	strategy, err := conflict.ParseStrategy(v.GetString("CONFLICT_STRATEGY"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONFLICT_STRATEGY: %w", err)
	}

	cfg := &Config{
		ServerPort:         v.GetString("SERVER_PORT"),
		StorageDriver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		SQLiteDir:          v.GetString("SQLITE_DIR"),
		RedisURL:           v.GetString("REDIS_URL"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		ConflictStrategy:   strategy,
		HonorClientIDs:     v.GetBool("SYNC_HONOR_CLIENT_IDS"),
		StorageTimeout:     v.GetDuration("STORAGE_TIMEOUT"),
		NotifyTimeout:      v.GetDuration("NOTIFY_TIMEOUT"),
		NotifyQueueSize:    v.GetInt("NOTIFY_QUEUE_SIZE"),
		PullConcurrency:    v.GetInt("PULL_CONCURRENCY"),
		WebSocketPingEvery: v.GetDuration("WS_PING_INTERVAL"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		LogFile:            v.GetString("LOG_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case DriverSQLite:
		if c.SQLiteDir == "" {
			return errors.New("SQLITE_DIR is required")
		}
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.StorageTimeout <= 0 {
		return errors.New("STORAGE_TIMEOUT must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be positive")
	}
	if c.NotifyQueueSize < 1 {
		return errors.New("NOTIFY_QUEUE_SIZE must be at least 1")
	}
	if c.PullConcurrency < 1 {
		return errors.New("PULL_CONCURRENCY must be at least 1")
	}
	if c.WebSocketPingEvery <= 0 {
		return errors.New("WS_PING_INTERVAL must be positive")
	}
	return nil
}
