package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prudhvinik1/tenantsync/internal/api"
	"github.com/prudhvinik1/tenantsync/internal/config"
	"github.com/prudhvinik1/tenantsync/internal/database"
	"github.com/prudhvinik1/tenantsync/internal/metrics"
	"github.com/prudhvinik1/tenantsync/internal/notify"
	"github.com/prudhvinik1/tenantsync/internal/registry"
	"github.com/prudhvinik1/tenantsync/internal/repositories"
	"github.com/prudhvinik1/tenantsync/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync gateway",
	Long: `Start the HTTP and WebSocket sync gateway.

Storage is selected with STORAGE_DRIVER (postgres or sqlite). When REDIS_URL is
set, notifications are relayed between nodes and connection presence is
tracked cluster-wide.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("port", "", "Port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().String("storage", "", "Storage driver: postgres or sqlite (overrides STORAGE_DRIVER)")
	cobra.CheckErr(viper.BindPFlag("SERVER_PORT", serveCmd.Flags().Lookup("port")))
	cobra.CheckErr(viper.BindPFlag("STORAGE_DRIVER", serveCmd.Flags().Lookup("storage")))
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	nodeID := uuid.NewString()
	logger.Infow("Starting tenantsync",
		"node", nodeID,
		"storage", cfg.StorageDriver,
		"strategy", cfg.ConflictStrategy,
	)

	stores, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	m := metrics.New()
	bus := notify.NewBus(
		notify.WithQueueSize(cfg.NotifyQueueSize),
		notify.WithDropHook(m.NotificationDropped),
		notify.WithLogger(logger),
	)

	// Optional cross-node relay and presence
	var presence repositories.PresenceRepository
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redisClient.Close()

		relay := notify.NewRedisRelay(redisClient, bus, nodeID, cfg.NotifyTimeout, logger)
		bus.SetPublisher(relay)
		go func() {
			if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorw("Notification relay stopped", "error", err)
			}
		}()
		presence = repositories.NewRedisPresenceRepository(redisClient)
	}

	reg := registry.NewDefault()
	syncService := services.NewSyncService(stores, reg, bus, m, logger, services.SyncOptions{
		Strategy:        cfg.ConflictStrategy,
		HonorClientIDs:  cfg.HonorClientIDs,
		StorageTimeout:  cfg.StorageTimeout,
		PullConcurrency: cfg.PullConcurrency,
	})
	authService := services.NewAuthService(cfg.JWTSecret)

	realtime := api.NewRealtime(bus, authService, presence, m, logger, api.RealtimeOptions{
		NodeID:       nodeID,
		WriteTimeout: cfg.NotifyTimeout,
		PingEvery:    cfg.WebSocketPingEvery,
	})

	router, err := api.NewServer(syncService, reg, authService,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware(logger),
		),
		api.WithRequestTimeout(requestTimeout(cfg)),
		api.WithMetrics(m),
		api.WithRealtime(realtime),
		api.WithConnections(bus, presence),
		api.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// WriteTimeout stays unset: WebSocket connections manage their own deadlines
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	go func() {
		logger.Infow("Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Server forced to shutdown", "error", err)
		return err
	}
	realtime.Close()
	stopRelay()

	logger.Info("Server stopped gracefully")
	return nil
}

// requestTimeout leaves room for a full storage call plus encoding.
func requestTimeout(cfg *config.Config) time.Duration {
	return cfg.StorageTimeout + 5*time.Second
}

