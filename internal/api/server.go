// Package api provides the HTTP and WebSocket gateway for tenant sync.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/tenantsync/internal/conflict"
	"github.com/prudhvinik1/tenantsync/internal/metrics"
	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/services"
	"go.uber.org/zap"
)

// SyncAPI is the pipeline surface the gateway drives. *services.SyncService
// satisfies it.
type SyncAPI interface {
	Push(ctx context.Context, tenantID string, changes []models.SyncChange) (*models.PushResult, error)
	Pull(ctx context.Context, tenantID string, checkpoint time.Time, entityTypes []string) (*models.PullResult, error)
	PullPending(ctx context.Context, tenantID string, entityTypes []string) (*models.PullResult, error)
	Strategy() conflict.Strategy
}

// TypeLister lists registered entity types. *registry.Registry satisfies it.
type TypeLister interface {
	Types() []string
}

// ConnectionCounter reports live connections on this node.
// *notify.Bus satisfies it.
type ConnectionCounter interface {
	ConnectionCount() int
	TenantConnectionCount(tenantID string) int
	Tenants() []string
}

// PresenceReader reports live connections across the cluster.
// repositories.PresenceRepository satisfies it.
type PresenceReader interface {
	CountTenant(ctx context.Context, tenantID string) (int64, error)
	ListTenant(ctx context.Context, tenantID string) ([]models.Presence, error)
}

// ServerOption configures the sync API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	metrics        *metrics.Metrics
	realtime       http.Handler
	connections    ConnectionCounter
	presence       PresenceReader
	logger         *zap.SugaredLogger
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRequestTimeout bounds the sync HTTP routes. The WebSocket route is
// long-lived and not affected.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) {
		cfg.requestTimeout = d
	}
}

// WithMetrics records request metrics and exposes /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = m
	}
}

// WithRealtime mounts the WebSocket channel at /sync/ws.
func WithRealtime(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.realtime = h
	}
}

// WithConnections enables /sync/connections and adds node connection counts
// to /health. presence may be nil on a single node.
func WithConnections(local ConnectionCounter, presence PresenceReader) ServerOption {
	return func(cfg *serverConfig) {
		cfg.connections = local
		cfg.presence = presence
	}
}

func WithLogger(logger *zap.SugaredLogger) ServerOption {
	return func(cfg *serverConfig) {
		cfg.logger = logger
	}
}

// NewServer creates the HTTP router for the sync gateway.
func NewServer(svc SyncAPI, types TypeLister, verifier services.TokenVerifier, opts ...ServerOption) (*chi.Mux, error) {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schemas: %w", err)
	}

	h := &syncHandler{
		svc:         svc,
		types:       types,
		validator:   v,
		connections: cfg.connections,
		presence:    cfg.presence,
		logger:      cfg.logger,
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}
	if cfg.metrics != nil {
		r.Use(MetricsMiddleware(cfg.metrics))
		r.Method(http.MethodGet, "/metrics", cfg.metrics.Handler())
	}

	r.Get("/health", healthHandler(cfg.connections))

	r.Route("/sync", func(r chi.Router) {
		if cfg.realtime != nil {
			// Authenticated in-band by the first frame
			r.Handle("/ws", cfg.realtime)
		}

		r.Group(func(r chi.Router) {
			if cfg.requestTimeout > 0 {
				r.Use(middleware.Timeout(cfg.requestTimeout))
			}
			r.Use(RequireAuth(verifier))
			r.Post("/push", h.push)
			r.Post("/pull", h.pull)
			r.Post("/pull-pending", h.pullPending)
			r.Get("/types", h.listTypes)
			if cfg.connections != nil {
				r.Get("/connections", h.connectionsHandler)
			}
		})
	})

	return r, nil
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections *int   `json:"connections,omitempty"`
	Tenants     *int   `json:"tenants,omitempty"`
}

func healthHandler(local ConnectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		if local != nil {
			connections, tenants := local.ConnectionCount(), len(local.Tenants())
			resp.Connections = &connections
			resp.Tenants = &tenants
		}
		writeJSON(w, resp, http.StatusOK)
	}
}
