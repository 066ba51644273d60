package repositories

import (
	"context"
	"errors"

	"github.com/prudhvinik1/tenantsync/internal/entities"
	"github.com/prudhvinik1/tenantsync/internal/models"
)

var ErrNotFound = errors.New("not found")

// EntityRepository is the per-kind storage capability the sync pipelines use.
type EntityRepository interface {
	Find(ctx context.Context, id string) (models.Record, error)
	// Create persists a new record. A record id that is not a valid
	// identifier is replaced by a generated one.
	Create(ctx context.Context, rec models.Record) (models.Record, error)
	Save(ctx context.Context, rec models.Record) (models.Record, error)
	// Query returns matching records ordered by updatedAt descending.
	Query(ctx context.Context, filter entities.Filter) ([]models.Record, error)
}

// EntityTx is one tenant transaction. It is owned by a single request.
type EntityTx interface {
	Repository(kind entities.Kind) EntityRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// EntityStore is a tenant-scoped storage handle.
type EntityStore interface {
	// Repository runs each call in its own implicit transaction.
	Repository(kind entities.Kind) EntityRepository
	Begin(ctx context.Context) (EntityTx, error)
}

// StoreProvider hands out the storage handle of a tenant, creating the
// tenant's schema on first use.
type StoreProvider interface {
	Store(ctx context.Context, tenantID string) (EntityStore, error)
	Close() error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	DeletePresence(ctx context.Context, tenantID, connectionID string) error
	CountTenant(ctx context.Context, tenantID string) (int64, error)
	ListTenant(ctx context.Context, tenantID string) ([]models.Presence, error)
}
