package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/entities"
	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSQLiteStore(t *testing.T, tenantID string) (*SQLiteStoreProvider, EntityStore) {
	t.Helper()
	provider, err := NewSQLiteStoreProvider(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	store, err := provider.Store(context.Background(), tenantID)
	require.NoError(t, err)
	return provider, store
}

func TestSQLiteStoreProvider_CreatesTenantFileOnDemand(t *testing.T) {
	dir := t.TempDir()
	provider, err := NewSQLiteStoreProvider(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Store(context.Background(), "acme")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "tenant_acme.db"))
	assert.NoError(t, err, "tenant database file should exist")

	// Second call reuses the cached handle
	_, err = provider.Store(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, provider.dbs, 1)
}

func TestSQLiteStoreProvider_RejectsUnsafeTenantID(t *testing.T) {
	provider, err := NewSQLiteStoreProvider(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Store(context.Background(), "../etc")
	assert.Error(t, err)
}

func TestSQLiteEntityRepository_CreateAssignsID(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	repo := store.Repository(entities.Customers)
	ctx := context.Background()

	created, err := repo.Create(ctx, models.Record{
		"id":    "local-42",
		"name":  "Acme",
		"email": "a@acme.io",
	})

	require.NoError(t, err)
	_, ok := utils.ParseID(created.ID())
	assert.True(t, ok, "invalid client id must be replaced")
	assert.Equal(t, int64(1), created.Version())
	assert.Equal(t, "Acme", created["name"])

	found, err := repo.Find(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, created, found)
}

func TestSQLiteEntityRepository_Find_NotFound(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	repo := store.Repository(entities.Customers)

	_, err := repo.Find(context.Background(), utils.NewID())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Find(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteEntityRepository_KindsAreIsolated(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	ctx := context.Background()

	created, err := store.Repository(entities.Customers).Create(ctx, models.Record{"name": "A", "email": "a@x.io"})
	require.NoError(t, err)

	_, err = store.Repository(entities.Contacts).Find(ctx, created.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteEntityRepository_Save(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	repo := store.Repository(entities.Customers)
	ctx := context.Background()

	created, err := repo.Create(ctx, models.Record{"name": "A", "email": "a@x.io"})
	require.NoError(t, err)

	updated := created.Clone()
	updated["name"] = "B"
	updated.SetVersion(2)
	updated.SetTime(models.FieldUpdatedAt, time.Now().Add(time.Hour))

	saved, err := repo.Save(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, "B", saved["name"])
	assert.Equal(t, int64(2), saved.Version())
	assert.Equal(t, created[models.FieldCreatedAt], saved[models.FieldCreatedAt], "createdAt is immutable")

	missing := models.Record{"id": utils.NewID(), "name": "C"}
	_, err = repo.Save(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteEntityRepository_QueryChangedSince(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	repo := store.Repository(entities.Customers)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "newer", "newest", "deleted"} {
		rec := models.Record{"name": name, "email": name + "@x.io"}
		rec.SetTime(models.FieldUpdatedAt, base.Add(time.Duration(i)*time.Hour))
		if name == "deleted" {
			rec["isDeleted"] = true
		}
		_, err := repo.Create(ctx, rec)
		require.NoError(t, err)
	}

	records, err := repo.Query(ctx, entities.Customers.ChangedSince(base))
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r["name"].(string))
	}
	assert.Equal(t, []string{"newest", "newer"}, names, "strictly after checkpoint, newest first, deleted excluded")
}

func TestSQLiteEntityRepository_QueryNumericDeletion(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	repo := store.Repository(entities.EndUser)
	ctx := context.Background()

	_, err := repo.Create(ctx, models.Record{"email": "live@x.io", "is_deleted": int64(0)})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.Record{"email": "gone@x.io", "is_deleted": int64(1)})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.Record{"email": "noflag@x.io"})
	require.NoError(t, err)

	records, err := repo.Query(ctx, entities.EndUser.ChangedSince(time.Unix(0, 0)))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, "gone@x.io", r["email"])
	}
}

func TestSQLiteEntityRepository_QueryPending(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	repo := store.Repository(entities.Interactions)
	ctx := context.Background()

	for _, status := range []any{nil, "pending", "synced", "failed"} {
		rec := models.Record{"type": "call", "title": "t"}
		if status != nil {
			rec[models.FieldSyncStatus] = status
		}
		_, err := repo.Create(ctx, rec)
		require.NoError(t, err)
	}

	records, err := repo.Query(ctx, entities.Interactions.Pending())
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, r := range records {
		assert.NotEqual(t, models.SyncStatusSynced, r[models.FieldSyncStatus])
	}
}

func TestSQLiteEntityStore_RollbackDiscardsWrites(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	created, err := tx.Repository(entities.Customers).Create(ctx, models.Record{"name": "A", "email": "a@x.io"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	_, err = store.Repository(entities.Customers).Find(ctx, created.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	// Rollback after completion is harmless
	assert.NoError(t, tx.Rollback(ctx))
}

func TestSQLiteEntityStore_CommitPersists(t *testing.T) {
	_, store := newTestSQLiteStore(t, "acme")
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	created, err := tx.Repository(entities.Customers).Create(ctx, models.Record{"name": "A", "email": "a@x.io"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	found, err := store.Repository(entities.Customers).Find(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, "A", found["name"])
}

func TestSQLiteStoreProvider_TenantsAreIsolated(t *testing.T) {
	provider, acme := newTestSQLiteStore(t, "acme")
	ctx := context.Background()

	created, err := acme.Repository(entities.Customers).Create(ctx, models.Record{"name": "A", "email": "a@x.io"})
	require.NoError(t, err)

	globex, err := provider.Store(ctx, "globex")
	require.NoError(t, err)

	_, err = globex.Repository(entities.Customers).Find(ctx, created.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}
