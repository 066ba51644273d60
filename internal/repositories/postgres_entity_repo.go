package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/tenantsync/internal/entities"
	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/utils"
	"go.uber.org/zap"
)

// pgExecutor is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStoreProvider keeps every tenant in its own schema of one database.
type PostgresStoreProvider struct {
	pool    *pgxpool.Pool
	logger  *zap.SugaredLogger
	schemas *tenantGate
}

func NewPostgresStoreProvider(pool *pgxpool.Pool, logger *zap.SugaredLogger) *PostgresStoreProvider {
	return &PostgresStoreProvider{pool: pool, logger: logger, schemas: newTenantGate()}
}

func (p *PostgresStoreProvider) Store(ctx context.Context, tenantID string) (EntityStore, error) {
	if !utils.ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}
	table := pgx.Identifier{SchemaPrefix + tenantID, "sync_entities"}

	created, err := p.schemas.Ensure(tenantID, func() error {
		return p.ensureSchema(ctx, table)
	})
	if err != nil {
		return nil, err
	}
	if created {
		p.logger.Infow("Tenant schema ready", "tenant", tenantID)
	}
	return &PostgresEntityStore{pool: p.pool, table: table.Sanitize()}, nil
}

func (p *PostgresStoreProvider) ensureSchema(ctx context.Context, table pgx.Identifier) error {
	schema := pgx.Identifier{table[0]}.Sanitize()
	qualified := table.Sanitize()
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			entity_type TEXT NOT NULL,
			id UUID NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			sync_status TEXT,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (entity_type, id)
		)`, qualified),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS sync_entities_type_updated_idx
			ON %s (entity_type, updated_at DESC)`, qualified),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure tenant schema %s: %w", schema, err)
		}
	}
	return nil
}

// Close is a no-op; the pool is owned by main.
func (p *PostgresStoreProvider) Close() error {
	return nil
}

type PostgresEntityStore struct {
	pool  *pgxpool.Pool
	table string
}

func (s *PostgresEntityStore) Repository(kind entities.Kind) EntityRepository {
	return &PostgresEntityRepository{db: s.pool, table: s.table, kind: kind}
}

func (s *PostgresEntityStore) Begin(ctx context.Context) (EntityTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresEntityTx{tx: tx, table: s.table}, nil
}

type postgresEntityTx struct {
	tx    pgx.Tx
	table string
}

func (t *postgresEntityTx) Repository(kind entities.Kind) EntityRepository {
	return &PostgresEntityRepository{db: t.tx, table: t.table, kind: kind}
}

func (t *postgresEntityTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *postgresEntityTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

type PostgresEntityRepository struct {
	db    pgExecutor
	table string
	kind  entities.Kind
}

const pgSelectColumns = `id::text, version, sync_status, data, created_at, updated_at`

func (r *PostgresEntityRepository) Find(ctx context.Context, id string) (models.Record, error) {
	if _, ok := utils.ParseID(id); !ok {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE entity_type = $1 AND id = $2::uuid`, pgSelectColumns, r.table)

	var row recordRow
	err := r.db.QueryRow(ctx, query, r.kind.Name, id).Scan(
		&row.ID,
		&row.Version,
		&row.SyncStatus,
		&row.Data,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s by ID: %w", r.kind.Name, err)
	}
	return row.toRecord()
}

func (r *PostgresEntityRepository) Create(ctx context.Context, rec models.Record) (models.Record, error) {
	row, err := toRow(rec, true)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (entity_type, id, version, sync_status, data, created_at, updated_at)
	          VALUES ($1, $2::uuid, $3, $4, $5, $6, $7)`, r.table)

	_, err = r.db.Exec(ctx, query,
		r.kind.Name,
		row.ID,
		row.Version,
		row.SyncStatus,
		row.Data,
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.kind.Name, err)
	}
	return row.toRecord()
}

func (r *PostgresEntityRepository) Save(ctx context.Context, rec models.Record) (models.Record, error) {
	if _, ok := utils.ParseID(rec.ID()); !ok {
		return nil, ErrNotFound
	}
	row, err := toRow(rec, false)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`UPDATE %s
	          SET version = $3, sync_status = $4, data = $5, updated_at = $6
	          WHERE entity_type = $1 AND id = $2::uuid
	          RETURNING created_at`, r.table)

	err = r.db.QueryRow(ctx, query,
		r.kind.Name,
		row.ID,
		row.Version,
		row.SyncStatus,
		row.Data,
		row.UpdatedAt,
	).Scan(&row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", r.kind.Name, err)
	}
	return row.toRecord()
}

func (r *PostgresEntityRepository) Query(ctx context.Context, filter entities.Filter) ([]models.Record, error) {
	where := []string{"entity_type = $1"}
	args := []any{r.kind.Name}

	if filter.UpdatedAfter != nil {
		args = append(args, filter.UpdatedAfter.UTC())
		where = append(where, fmt.Sprintf("updated_at > $%d", len(args)))
	}
	if filter.ExcludeDeleted != nil {
		// Field names are validated identifiers (entities.Kind.Validate).
		where = append(where, fmt.Sprintf("COALESCE(data->>'%s', '0') NOT IN ('1', 'true')", filter.ExcludeDeleted.Field))
	}
	if filter.UnsyncedOnly {
		where = append(where, "(sync_status IS NULL OR sync_status <> 'synced')")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY updated_at DESC, id`,
		pgSelectColumns, r.table, strings.Join(where, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.kind.Name, err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var row recordRow
		err := rows.Scan(
			&row.ID,
			&row.Version,
			&row.SyncStatus,
			&row.Data,
			&row.CreatedAt,
			&row.UpdatedAt,
		)
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
