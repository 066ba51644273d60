package main

import (
	"context"
	"fmt"

	"github.com/prudhvinik1/tenantsync/internal/config"
	"github.com/prudhvinik1/tenantsync/internal/database"
	"github.com/prudhvinik1/tenantsync/internal/logging"
	"github.com/prudhvinik1/tenantsync/internal/repositories"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "tenantsync",
	Short: "Multi-tenant offline sync server",
	Long: `tenantsync accepts batched changes from offline clients, resolves conflicts
against each tenant's store and pushes change notifications to live clients.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().String("config", "", "Optional YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cobra.CheckErr(viper.BindPFlag("CONFIG_FILE", rootCmd.PersistentFlags().Lookup("config")))
	cobra.CheckErr(viper.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level")))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)

	return rootCmd
}

// loadRuntime reads configuration, with bound flags, and builds the logger.
func loadRuntime() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openStores connects the configured tenant storage. The returned cleanup
// releases it.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (repositories.StoreProvider, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		provider := repositories.NewPostgresStoreProvider(pool, logger)
		return provider, func() {
			_ = provider.Close()
			pool.Close()
		}, nil

	case config.DriverSQLite:
		provider, err := repositories.NewSQLiteStoreProvider(cfg.SQLiteDir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite stores: %w", err)
		}
		return provider, func() {
			if err := provider.Close(); err != nil {
				logger.Warnw("Failed to close sqlite stores", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
