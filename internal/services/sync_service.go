package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prudhvinik1/tenantsync/internal/conflict"
	"github.com/prudhvinik1/tenantsync/internal/entities"
	"github.com/prudhvinik1/tenantsync/internal/metrics"
	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/notify"
	"github.com/prudhvinik1/tenantsync/internal/registry"
	"github.com/prudhvinik1/tenantsync/internal/repositories"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
	"github.com/prudhvinik1/tenantsync/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultStorageTimeout  = 10 * time.Second
	defaultPullConcurrency = 4
)

// Notifier receives tenant-scoped notifications. *notify.Bus satisfies it.
type Notifier interface {
	Notify(tenantID string, n models.Notification)
}

type SyncOptions struct {
	Strategy conflict.Strategy
	// HonorClientIDs keeps a well-formed client UUID on create instead of
	// generating a new one, which makes offline retries idempotent.
	HonorClientIDs  bool
	StorageTimeout  time.Duration
	PullConcurrency int
}

type SyncService struct {
	stores   repositories.StoreProvider
	registry *registry.Registry
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	opts     SyncOptions
	now      func() time.Time
}

func NewSyncService(
	stores repositories.StoreProvider,
	reg *registry.Registry,
	notifier Notifier,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
	opts SyncOptions,
) *SyncService {
	if opts.Strategy == "" {
		opts.Strategy = conflict.ServerWins
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = defaultStorageTimeout
	}
	if opts.PullConcurrency < 1 {
		opts.PullConcurrency = defaultPullConcurrency
	}
	return &SyncService{
		stores:   stores,
		registry: reg,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Strategy reports the conflict strategy pushes are resolved with.
func (s *SyncService) Strategy() conflict.Strategy {
	return s.opts.Strategy
}

// pushFailure remembers which entity type a batch failed on.
type pushFailure struct {
	entityType string
	err        error
}

// Push applies a batch of client changes in order inside one transaction.
// Either every change is persisted or none is.
func (s *SyncService) Push(ctx context.Context, tenantID string, changes []models.SyncChange) (*models.PushResult, error) {
	started := s.now()

	result, queued, failure := s.push(ctx, tenantID, changes)
	if failure != nil {
		s.metrics.PushBatch("error")
		s.logger.Warnw("Push rejected",
			"tenant", tenantID,
			"changes", len(changes),
			"entity_type", failure.entityType,
			"code", syncerr.CodeOf(failure.err),
			"error", failure.err,
		)
		s.notify(tenantID, notify.SyncError(failure.entityType, failure.err.Error(), s.now()))
		return nil, failure.err
	}

	s.metrics.PushBatch("success")
	for _, n := range queued {
		s.notify(tenantID, n)
	}
	s.logger.Infow("Push committed",
		"tenant", tenantID,
		"changes", len(changes),
		"duration", time.Since(started),
	)

	result.SyncTimestamp = models.FormatTime(started)
	return result, nil
}

func (s *SyncService) push(ctx context.Context, tenantID string, changes []models.SyncChange) (*models.PushResult, []models.Notification, *pushFailure) {
	if !utils.ValidTenantID(tenantID) {
		return nil, nil, &pushFailure{entityType: "", err: syncerr.Authorization("invalid tenant")}
	}

	// Every kind is resolved before storage is touched.
	kinds := make([]entities.Kind, len(changes))
	for i, change := range changes {
		kind, err := s.registry.Resolve(change.EntityType)
		if err != nil {
			return nil, nil, &pushFailure{entityType: change.EntityType, err: err}
		}
		if !change.Operation.Valid() {
			return nil, nil, &pushFailure{
				entityType: change.EntityType,
				err:        syncerr.Validation("%s: unknown operation %q", change.EntityType, change.Operation),
			}
		}
		kinds[i] = kind
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()

	store, err := s.stores.Store(ctx, tenantID)
	if err != nil {
		return nil, nil, &pushFailure{err: syncerr.Storage("open tenant store", err)}
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		return nil, nil, &pushFailure{err: syncerr.Storage("begin transaction", err)}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// The request context may already be done.
		rbCtx, rbCancel := context.WithTimeout(context.Background(), s.opts.StorageTimeout)
		defer rbCancel()
		if err := tx.Rollback(rbCtx); err != nil {
			s.logger.Errorw("Failed to rollback push", "tenant", tenantID, "error", err)
		}
	}()

	result := &models.PushResult{Success: true, Data: make([]models.Record, 0, len(changes))}
	var queued []models.Notification
	ops := make([]models.Operation, len(changes))
	// Ids generated for client ids earlier in this batch, per kind.
	aliases := make(map[string]string)

	for i, change := range changes {
		kind := kinds[i]
		rec, notes, op, err := s.applyChange(ctx, tx.Repository(kind), kind, change, aliases)
		if err != nil {
			return nil, nil, &pushFailure{entityType: change.EntityType, err: err}
		}
		ops[i] = op
		result.Data = append(result.Data, rec)
		queued = append(queued, notes...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, &pushFailure{err: syncerr.Storage("commit push", err)}
	}
	committed = true

	for i, change := range changes {
		s.metrics.PushChange(change.EntityType, string(ops[i]))
	}
	return result, queued, nil
}

func (s *SyncService) applyChange(
	ctx context.Context,
	repo repositories.EntityRepository,
	kind entities.Kind,
	change models.SyncChange,
	aliases map[string]string,
) (models.Record, []models.Notification, models.Operation, error) {
	now := s.now()
	clientTime := now
	if change.Timestamp != nil && !change.Timestamp.IsZero() {
		clientTime = change.Timestamp.UTC()
	}

	rec, err := kind.Normalize(change.Data, change.Operation, clientTime)
	if err != nil {
		return nil, nil, "", err
	}

	clientID := change.Data.ID()
	lookupID := clientID
	if alias, ok := aliases[aliasKey(kind, clientID)]; ok {
		lookupID = alias
	}

	var existing models.Record
	if id, ok := utils.ParseID(lookupID); ok {
		existing, err = repo.Find(ctx, id.String())
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, "", syncerr.Storage("find "+change.EntityType, err)
		}
	}

	if existing != nil {
		saved, notes, err := s.update(ctx, repo, kind, change, existing, rec, now)
		return saved, notes, models.OperationUpdate, err
	}

	saved, err := s.create(ctx, repo, rec, clientID, now)
	if err != nil {
		return nil, nil, "", err
	}
	if clientID != "" {
		aliases[aliasKey(kind, clientID)] = saved.ID()
	}
	return saved, []models.Notification{notify.DataAvailable(change.EntityType, saved.ID(), now)}, models.OperationCreate, nil
}

func (s *SyncService) create(ctx context.Context, repo repositories.EntityRepository, rec models.Record, clientID string, now time.Time) (models.Record, error) {
	if id, ok := utils.ParseID(clientID); ok && s.opts.HonorClientIDs {
		rec.SetID(id.String())
	} else {
		rec.SetID(utils.NewID())
	}
	rec[models.FieldSyncStatus] = models.SyncStatusSynced
	rec.SetTime(models.FieldUpdatedAt, now)

	saved, err := repo.Create(ctx, rec)
	if err != nil {
		return nil, syncerr.Storage("create record", err)
	}
	return saved, nil
}

func (s *SyncService) update(
	ctx context.Context,
	repo repositories.EntityRepository,
	kind entities.Kind,
	change models.SyncChange,
	existing, rec models.Record,
	now time.Time,
) (models.Record, []models.Notification, error) {
	var notes []models.Notification
	if conflict.Detect(existing, change.Data) {
		s.metrics.Conflict(string(s.opts.Strategy))
		notes = append(notes, notify.ConflictDetected(change.EntityType, existing.ID(), existing, change.Data, now))
	}

	stripSynthesized(kind, change, rec)
	merged, err := conflict.Resolve(existing, rec, s.opts.Strategy, now)
	if err != nil {
		return nil, nil, err
	}
	fillSynthesized(kind, merged)
	// An explicit delete survives every strategy.
	if change.Operation == models.OperationDelete && !kind.IsDeleted(merged) {
		merged[kind.Deletion.Field] = kind.Deletion.Value(true)
		merged.SetVersion(existing.Version() + 1)
	}
	merged[models.FieldSyncStatus] = models.SyncStatusSynced
	merged.SetTime(models.FieldUpdatedAt, now)

	saved, err := repo.Save(ctx, merged)
	if err != nil {
		return nil, nil, syncerr.Storage("save record", err)
	}
	notes = append(notes, notify.SyncComplete(change.EntityType, saved.ID(), now))
	return saved, notes, nil
}

func aliasKey(kind entities.Kind, clientID string) string {
	return kind.Name + "/" + clientID
}

// stripSynthesized drops the fields normalization filled in that the client
// never sent, so they cannot override stored values during resolution.
func stripSynthesized(kind entities.Kind, change models.SyncChange, rec models.Record) {
	for field := range kind.Defaults {
		if !change.Data.Has(field) {
			delete(rec, field)
		}
	}
	if kind.Deletion.Tracked() && change.Operation != models.OperationDelete && !change.Data.Has(kind.Deletion.Field) {
		delete(rec, kind.Deletion.Field)
	}
	// Without a client clock the record has no write time to compete with.
	if change.Timestamp == nil && !change.Data.Has(models.FieldUpdatedAt) {
		delete(rec, models.FieldUpdatedAt)
	}
}

// fillSynthesized restores kind defaults missing after resolution.
func fillSynthesized(kind entities.Kind, rec models.Record) {
	for field, value := range kind.Defaults {
		if !rec.Has(field) {
			rec[field] = value
		}
	}
	if kind.Deletion.Tracked() && !rec.Has(kind.Deletion.Field) {
		rec[kind.Deletion.Field] = kind.Deletion.Value(false)
	}
}

// Pull returns, per requested type, the non-deleted records changed after
// checkpoint. A type whose query fails is returned empty.
func (s *SyncService) Pull(ctx context.Context, tenantID string, checkpoint time.Time, entityTypes []string) (*models.PullResult, error) {
	s.metrics.Pull("changes")
	return s.pull(ctx, tenantID, entityTypes, func(k entities.Kind) entities.Filter {
		return k.ChangedSince(checkpoint)
	})
}

// PullPending returns, per requested type, the non-deleted records not yet
// marked synced.
func (s *SyncService) PullPending(ctx context.Context, tenantID string, entityTypes []string) (*models.PullResult, error) {
	s.metrics.Pull("pending")
	return s.pull(ctx, tenantID, entityTypes, entities.Kind.Pending)
}

func (s *SyncService) pull(ctx context.Context, tenantID string, entityTypes []string, filterFor func(entities.Kind) entities.Filter) (*models.PullResult, error) {
	started := s.now()

	if !utils.ValidTenantID(tenantID) {
		return nil, syncerr.Authorization("invalid tenant")
	}
	if len(entityTypes) == 0 {
		entityTypes = s.registry.Types()
	}
	kinds, err := s.registry.ResolveAll(entityTypes)
	if err != nil {
		return nil, err
	}

	store, err := s.stores.Store(ctx, tenantID)
	if err != nil {
		return nil, syncerr.Storage("open tenant store", err)
	}

	var mu sync.Mutex
	data := make(map[string][]models.Record, len(entityTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PullConcurrency)

	for i, typeName := range entityTypes {
		kind := kinds[i]
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, s.opts.StorageTimeout)
			defer cancel()

			records, err := store.Repository(kind).Query(qctx, filterFor(kind))
			if err != nil {
				s.metrics.PullDegraded(typeName)
				s.logger.Warnw("Pull degraded, returning no records for entity type",
					"tenant", tenantID,
					"entity_type", typeName,
					"error", err,
				)
				records = nil
			}
			if records == nil {
				records = []models.Record{}
			}

			mu.Lock()
			data[typeName] = records
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &models.PullResult{
		Success:       true,
		Data:          data,
		SyncTimestamp: models.FormatTime(started),
	}, nil
}

func (s *SyncService) notify(tenantID string, n models.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(tenantID, n)
}
