package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/database"
	"github.com/prudhvinik1/tenantsync/internal/entities"
	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/utils"
	"go.uber.org/zap"
)

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_entities (
	entity_type TEXT NOT NULL,
	id TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	sync_status TEXT,
	data TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (entity_type, id)
);
CREATE INDEX IF NOT EXISTS sync_entities_type_updated_idx ON sync_entities (entity_type, updated_at DESC);
`

// SQLiteStoreProvider keeps every tenant in its own database file under dir.
type SQLiteStoreProvider struct {
	dir    string
	logger *zap.SugaredLogger

	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

func NewSQLiteStoreProvider(dir string, logger *zap.SugaredLogger) (*SQLiteStoreProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
	}
	return &SQLiteStoreProvider{dir: dir, logger: logger, dbs: make(map[string]*sql.DB)}, nil
}

func (p *SQLiteStoreProvider) Store(ctx context.Context, tenantID string) (EntityStore, error) {
	if !utils.ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}

	p.mu.RLock()
	db, ok := p.dbs[tenantID]
	p.mu.RUnlock()
	if ok {
		return &SQLiteEntityStore{db: db}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[tenantID]; ok {
		return &SQLiteEntityStore{db: db}, nil
	}

	db, err := p.open(ctx, filepath.Join(p.dir, SchemaPrefix+tenantID+".db"))
	if err != nil {
		return nil, err
	}
	p.dbs[tenantID] = db
	p.logger.Infow("Tenant database ready", "tenant", tenantID)
	return &SQLiteEntityStore{db: db}, nil
}

func (p *SQLiteStoreProvider) open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure tenant schema: %w", err)
	}
	return db, nil
}

// Close closes every open tenant database.
func (p *SQLiteStoreProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for id, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
		delete(p.dbs, id)
	}
	return errors.Join(errs...)
}

type SQLiteEntityStore struct {
	db *sql.DB
}

func (s *SQLiteEntityStore) Repository(kind entities.Kind) EntityRepository {
	return &SQLiteEntityRepository{db: s.db, kind: kind}
}

func (s *SQLiteEntityStore) Begin(ctx context.Context) (EntityTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteEntityTx{tx: tx}, nil
}

type sqliteEntityTx struct {
	tx *sql.Tx
}

func (t *sqliteEntityTx) Repository(kind entities.Kind) EntityRepository {
	return &SQLiteEntityRepository{db: t.tx, kind: kind}
}

func (t *sqliteEntityTx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteEntityTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

type SQLiteEntityRepository struct {
	db   sqlExecutor
	kind entities.Kind
}

const sqliteSelectColumns = `id, version, sync_status, data, created_at, updated_at`

func (r *SQLiteEntityRepository) Find(ctx context.Context, id string) (models.Record, error) {
	if _, ok := utils.ParseID(id); !ok {
		return nil, ErrNotFound
	}
	query := `SELECT ` + sqliteSelectColumns + ` FROM sync_entities WHERE entity_type = ? AND id = ?`

	row, err := scanSQLiteRow(r.db.QueryRowContext(ctx, query, r.kind.Name, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s by ID: %w", r.kind.Name, err)
	}
	return row.toRecord()
}

func (r *SQLiteEntityRepository) Create(ctx context.Context, rec models.Record) (models.Record, error) {
	row, err := toRow(rec, true)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO sync_entities (entity_type, id, version, sync_status, data, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		r.kind.Name,
		row.ID,
		row.Version,
		row.SyncStatus,
		string(row.Data),
		row.CreatedAt.UnixMicro(),
		row.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.kind.Name, err)
	}
	return row.toRecord()
}

func (r *SQLiteEntityRepository) Save(ctx context.Context, rec models.Record) (models.Record, error) {
	if _, ok := utils.ParseID(rec.ID()); !ok {
		return nil, ErrNotFound
	}
	row, err := toRow(rec, false)
	if err != nil {
		return nil, err
	}

	query := `UPDATE sync_entities
	          SET version = ?, sync_status = ?, data = ?, updated_at = ?
	          WHERE entity_type = ? AND id = ?
	          RETURNING created_at`

	var createdAt int64
	err = r.db.QueryRowContext(ctx, query,
		row.Version,
		row.SyncStatus,
		string(row.Data),
		row.UpdatedAt.UnixMicro(),
		r.kind.Name,
		row.ID,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", r.kind.Name, err)
	}
	row.CreatedAt = time.UnixMicro(createdAt).UTC()
	return row.toRecord()
}

func (r *SQLiteEntityRepository) Query(ctx context.Context, filter entities.Filter) ([]models.Record, error) {
	where := []string{"entity_type = ?"}
	args := []any{r.kind.Name}

	if filter.UpdatedAfter != nil {
		where = append(where, "updated_at > ?")
		args = append(args, filter.UpdatedAfter.UnixMicro())
	}
	if filter.ExcludeDeleted != nil {
		where = append(where, fmt.Sprintf("COALESCE(json_extract(data, '$.%s'), 0) NOT IN (1, '1', 'true')", filter.ExcludeDeleted.Field))
	}
	if filter.UnsyncedOnly {
		where = append(where, "(sync_status IS NULL OR sync_status <> 'synced')")
	}

	query := fmt.Sprintf(`SELECT %s FROM sync_entities WHERE %s ORDER BY updated_at DESC, id`,
		sqliteSelectColumns, strings.Join(where, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.kind.Name, err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		row, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.kind.Name, err)
		}
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", r.kind.Name, err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRow(s rowScanner) (*recordRow, error) {
	var (
		row        recordRow
		syncStatus sql.NullString
		data       string
		createdAt  int64
		updatedAt  int64
	)
	if err := s.Scan(&row.ID, &row.Version, &syncStatus, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if syncStatus.Valid {
		row.SyncStatus = &syncStatus.String
	}
	row.Data = []byte(data)
	row.CreatedAt = time.UnixMicro(createdAt).UTC()
	row.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &row, nil
}
