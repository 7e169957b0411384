package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/infrastructure/telemetry"
)

// ProgressFunc receives a snapshot of the run after every phase change
type ProgressFunc = catalogsync.ProgressFunc

// Orchestrator composes discovery, pull and push into sync runs.
// Every run holds the (organization, entity type) guard in sync_status while it works.
type Orchestrator struct {
	discovery *DiscoveryService
	puller    *PullExecutor
	pusher    *PushQueueProcessor
	resolver  *CatalogResolver
	mirror    catalogsync.MirrorRepository
	queue     catalogsync.SyncQueueRepository
	status    catalogsync.SyncStatusRepository
	runs      catalogsync.RunStore
	metrics   MetricsRecorder
	logger    *zap.Logger
	settings  Settings
	now       func() time.Time
}

// OrchestratorDeps groups the collaborators of an Orchestrator
type OrchestratorDeps struct {
	Discovery *DiscoveryService
	Puller    *PullExecutor
	Pusher    *PushQueueProcessor
	Resolver  *CatalogResolver
	Mirror    catalogsync.MirrorRepository
	Queue     catalogsync.SyncQueueRepository
	Status    catalogsync.SyncStatusRepository
	Runs      catalogsync.RunStore
	Metrics   MetricsRecorder
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(deps OrchestratorDeps, settings Settings, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		discovery: deps.Discovery,
		puller:    deps.Puller,
		pusher:    deps.Pusher,
		resolver:  deps.Resolver,
		mirror:    deps.Mirror,
		queue:     deps.Queue,
		status:    deps.Status,
		runs:      deps.Runs,
		metrics:   metricsOrNoop(deps.Metrics),
		logger:    nopIfNil(logger).Named("orchestrator"),
		settings:  settings.withDefaults(),
		now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Guarded single stages
// ---------------------------------------------------------------------------

// Discover runs a discovery under the sync guard
func (o *Orchestrator) Discover(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.DiscoveryResult, error) {
	if err := o.acquire(ctx, orgID, entityType); err != nil {
		return nil, err
	}
	result, err := o.discovery.Discover(ctx, orgID, entityType)
	o.release(ctx, orgID, entityType, err)
	return result, err
}

// Pull pulls the given ids under the sync guard
func (o *Orchestrator) Pull(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, ids []int64, batchSize int) (*catalogsync.PullResult, error) {
	if len(ids) == 0 {
		return nil, catalogsync.ErrNoIDs
	}
	if err := o.acquire(ctx, orgID, entityType); err != nil {
		return nil, err
	}
	result, err := o.puller.Pull(ctx, orgID, entityType, ids, batchSize)
	o.release(ctx, orgID, entityType, err)
	return result, err
}

// ProcessQueue runs one push pass. Queue items carry their own claim, so no guard is taken.
func (o *Orchestrator) ProcessQueue(ctx context.Context, orgID uuid.UUID, batchSize, maxRetries int) (*catalogsync.PushResult, error) {
	return o.pusher.ProcessQueue(ctx, orgID, batchSize, maxRetries)
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// FullSync runs discovery, pull of missing and changed ids, and push of due items
func (o *Orchestrator) FullSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, progress ProgressFunc) (*catalogsync.SyncRun, error) {
	run, err := o.BeginFullSync(ctx, orgID, entityType)
	if err != nil {
		return nil, err
	}
	return o.ExecuteFullSync(ctx, run, progress)
}

// BeginFullSync takes the guard and registers an idle full run.
// The caller must follow with ExecuteFullSync or AbortRun.
func (o *Orchestrator) BeginFullSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.SyncRun, error) {
	return o.begin(ctx, orgID, entityType, catalogsync.RunKindFull)
}

// ExecuteFullSync drives a run returned by BeginFullSync to completion or failure
// and releases the guard. Effects of finished stages are kept when a later stage fails.
func (o *Orchestrator) ExecuteFullSync(ctx context.Context, run *catalogsync.SyncRun, progress ProgressFunc) (_ *catalogsync.SyncRun, runErr error) {
	ctx, log := o.runContext(ctx, run)
	ctx, span := telemetry.StartSpan(ctx, "catalog_sync.full_sync", runAttributes(run)...)
	defer func() { telemetry.EndSpan(span, runErr) }()
	tracker := &runTracker{o: o, run: run, progress: progress, log: log}

	resource, err := o.resolver.Resource(ctx, run.OrganizationID, run.EntityType)
	if err != nil {
		return tracker.fail(ctx, err)
	}

	if err := tracker.advance(ctx, catalogsync.RunPhaseDiscovering, catalogsync.ProgressDiscovering, "discovering remote changes"); err != nil {
		return tracker.fail(ctx, err)
	}
	discovery, err := o.discovery.discover(ctx, run.OrganizationID, resource)
	if err != nil {
		return tracker.fail(ctx, err)
	}
	run.Discovery = discovery

	pullIDs := discovery.PullIDs()
	step := fmt.Sprintf("pulling %d %s", len(pullIDs), run.EntityType)
	if err := tracker.advance(ctx, catalogsync.RunPhasePulling, catalogsync.ProgressPulling, step); err != nil {
		return tracker.fail(ctx, err)
	}
	pulled, err := o.puller.pull(ctx, run.OrganizationID, resource, pullIDs, 0)
	run.Pull = pulled
	if err != nil {
		return tracker.fail(ctx, err)
	}

	queued, err := o.enqueueLocalOnly(ctx, run.OrganizationID, run.EntityType, discovery)
	if err != nil {
		return tracker.fail(ctx, err)
	}

	step = fmt.Sprintf("pushing local changes (%d newly queued)", queued)
	if err := tracker.advance(ctx, catalogsync.RunPhasePushing, catalogsync.ProgressPushing, step); err != nil {
		return tracker.fail(ctx, err)
	}
	pushed, err := o.drainQueue(ctx, run.OrganizationID)
	run.Push = pushed
	if err != nil {
		return tracker.fail(ctx, err)
	}

	return tracker.complete(ctx)
}

// SyncSpecific pulls the given ids without a discovery, e.g. after a webhook
func (o *Orchestrator) SyncSpecific(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, ids []int64, progress ProgressFunc) (_ *catalogsync.SyncRun, runErr error) {
	if len(ids) == 0 {
		return nil, catalogsync.ErrNoIDs
	}
	run, err := o.begin(ctx, orgID, entityType, catalogsync.RunKindTargeted)
	if err != nil {
		return nil, err
	}
	ctx, log := o.runContext(ctx, run)
	ctx, span := telemetry.StartSpan(ctx, "catalog_sync.sync_specific",
		append(runAttributes(run), attribute.Int("sync.ids", len(ids)))...)
	defer func() { telemetry.EndSpan(span, runErr) }()
	tracker := &runTracker{o: o, run: run, progress: progress, log: log}

	resource, err := o.resolver.Resource(ctx, orgID, entityType)
	if err != nil {
		return tracker.fail(ctx, err)
	}
	step := fmt.Sprintf("pulling %d %s", len(ids), entityType)
	if err := tracker.advance(ctx, catalogsync.RunPhasePulling, catalogsync.ProgressPulling, step); err != nil {
		return tracker.fail(ctx, err)
	}
	pulled, err := o.puller.pull(ctx, orgID, resource, ids, 0)
	run.Pull = pulled
	if err != nil {
		return tracker.fail(ctx, err)
	}
	return tracker.complete(ctx)
}

// AbortRun fails a run that was begun but never executed and releases its guard
func (o *Orchestrator) AbortRun(ctx context.Context, run *catalogsync.SyncRun, reason error) error {
	ctx, log := o.runContext(ctx, run)
	tracker := &runTracker{o: o, run: run, log: log}
	_, err := tracker.fail(ctx, reason)
	return err
}

func (o *Orchestrator) begin(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, kind catalogsync.RunKind) (*catalogsync.SyncRun, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	if err := o.acquire(ctx, orgID, entityType); err != nil {
		return nil, err
	}
	run := catalogsync.NewSyncRun(orgID, entityType, kind, o.now())
	o.saveRun(ctx, run)
	return run, nil
}

func runAttributes(run *catalogsync.SyncRun) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("sync.run_id", run.ID.String()),
		attribute.String("sync.organization_id", run.OrganizationID.String()),
		attribute.String("sync.entity_type", run.EntityType.String()),
	}
}

func (o *Orchestrator) runContext(ctx context.Context, run *catalogsync.SyncRun) (context.Context, *zap.Logger) {
	ctx, _ = logger.WithRunID(ctx, o.logger, run.ID.String())
	return ctx, scoped(ctx, o.logger).With(
		zap.String("organization_id", run.OrganizationID.String()),
		zap.String("entity_type", run.EntityType.String()),
		zap.String("kind", string(run.Kind)),
	)
}

// enqueueLocalOnly queues the local changes discovery found without an active queue item
func (o *Orchestrator) enqueueLocalOnly(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, result *catalogsync.DiscoveryResult) (int, error) {
	if !result.HasLocalOnlyChanges() {
		return 0, nil
	}
	now := o.now()
	items := make([]*catalogsync.SyncQueueItem, 0,
		len(result.ToCreateRemote)+len(result.ToUpdateRemote)+len(result.ToDeleteRemote))

	add := func(id int64, op catalogsync.QueueOperation) error {
		var data json.RawMessage
		if op != catalogsync.QueueOperationDelete {
			entity, err := o.mirror.FindByRemoteID(ctx, orgID, entityType, id)
			if errors.Is(err, catalogsync.ErrMirrorEntityNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			data = entity.Payload
		}
		item, err := catalogsync.NewSyncQueueItem(orgID, entityType, id, op, data, o.settings.MaxRetries, now)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}

	for _, id := range result.ToCreateRemote {
		if err := add(id, catalogsync.QueueOperationCreate); err != nil {
			return 0, err
		}
	}
	for _, id := range result.ToUpdateRemote {
		if err := add(id, catalogsync.QueueOperationUpdate); err != nil {
			return 0, err
		}
	}
	for _, id := range result.ToDeleteRemote {
		if err := add(id, catalogsync.QueueOperationDelete); err != nil {
			return 0, err
		}
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := o.queue.Enqueue(ctx, items...); err != nil {
		return 0, err
	}
	return len(items), nil
}

// drainQueue runs push passes until nothing due is left or the pass budget is spent
func (o *Orchestrator) drainQueue(ctx context.Context, orgID uuid.UUID) (*catalogsync.PushResult, error) {
	total := &catalogsync.PushResult{FailedItems: []uuid.UUID{}}
	for pass := 0; pass < o.settings.MaxPushPasses; pass++ {
		result, err := o.pusher.ProcessQueue(ctx, orgID, o.settings.QueueBatchSize, 0)
		total.Add(result)
		if err != nil {
			return total, err
		}
		if result.Processed+result.Errors == 0 {
			break
		}
	}
	return total, nil
}

// ---------------------------------------------------------------------------
// Guard
// ---------------------------------------------------------------------------

func (o *Orchestrator) acquire(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) error {
	if err := validateScope(orgID, entityType); err != nil {
		return err
	}
	now := o.now()
	ok, err := o.status.TryBeginSync(ctx, orgID, entityType, now, now.Add(-o.settings.StaleAfter))
	if err != nil {
		return err
	}
	if !ok {
		return catalogsync.ErrSyncInProgress
	}
	return nil
}

// release clears the guard even when ctx is already cancelled
func (o *Orchestrator) release(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, runErr error) {
	outcome := catalogsync.SyncOutcome{Succeeded: runErr == nil, FinishedAt: o.now()}
	if runErr != nil {
		outcome.Error = runErr.Error()
	}
	if err := o.status.FinishSync(context.WithoutCancel(ctx), orgID, entityType, outcome); err != nil {
		scoped(ctx, o.logger).Error("Failed to release sync guard",
			zap.String("organization_id", orgID.String()),
			zap.String("entity_type", entityType.String()),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, run *catalogsync.SyncRun) {
	if err := o.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		scoped(ctx, o.logger).Warn("Failed to store sync run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Status reporting
// ---------------------------------------------------------------------------

// GetSyncStatus reports the guard, the last discovery and the latest run of a pair
func (o *Orchestrator) GetSyncStatus(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*SyncStatusDTO, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	status, err := o.status.Get(ctx, orgID, entityType)
	if errors.Is(err, catalogsync.ErrSyncStatusNotFound) {
		status = catalogsync.NewSyncStatus(orgID, entityType)
	} else if err != nil {
		return nil, err
	}

	dto := &SyncStatusDTO{
		EntityType:    entityType.String(),
		IsSyncing:     status.IsSyncing,
		Stale:         status.IsStale(o.now(), o.settings.StaleAfter),
		StartedAt:     status.StartedAt,
		LastSyncTime:  status.LastSyncTime,
		LastError:     status.LastError,
		LastDiscovery: status.Metadata,
	}
	run, err := o.runs.Latest(ctx, orgID, entityType)
	switch {
	case err == nil:
		dto.CurrentRun = ToSyncRunDTO(run)
	case !errors.Is(err, catalogsync.ErrRunNotFound):
		return nil, err
	}

	counts, err := o.queue.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	dto.Queue = &QueueStatusDTO{
		Pending:    counts[catalogsync.QueueStatusPending],
		Processing: counts[catalogsync.QueueStatusProcessing],
		Completed:  counts[catalogsync.QueueStatusCompleted],
		Failed:     counts[catalogsync.QueueStatusFailed],
	}
	dto.Queue.Total = dto.Queue.Pending + dto.Queue.Processing + dto.Queue.Completed + dto.Queue.Failed
	return dto, nil
}

// GetRun returns a run of the organization
func (o *Orchestrator) GetRun(ctx context.Context, orgID, runID uuid.UUID) (*catalogsync.SyncRun, error) {
	run, err := o.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.OrganizationID != orgID {
		return nil, catalogsync.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns the latest run of every entity type of the organization
func (o *Orchestrator) ListRuns(ctx context.Context, orgID uuid.UUID) ([]*catalogsync.SyncRun, error) {
	if orgID == uuid.Nil {
		return nil, catalogsync.ErrInvalidOrganization
	}
	return o.runs.ListByOrganization(ctx, orgID)
}

// ---------------------------------------------------------------------------
// Run tracking
// ---------------------------------------------------------------------------

// runTracker records phase changes of one run
type runTracker struct {
	o        *Orchestrator
	run      *catalogsync.SyncRun
	progress ProgressFunc
	log      *zap.Logger
}

func (t *runTracker) advance(ctx context.Context, phase catalogsync.RunPhase, progress int, step string) error {
	if err := t.run.Advance(phase, progress, step); err != nil {
		return err
	}
	t.log.Info("Sync run advanced",
		zap.String("phase", phase.String()),
		zap.Int("progress", t.run.Progress),
		zap.String("step", step),
	)
	t.publish(ctx)
	return nil
}

func (t *runTracker) complete(ctx context.Context) (*catalogsync.SyncRun, error) {
	if err := t.run.Complete(t.o.now()); err != nil {
		return t.fail(ctx, err)
	}
	t.o.release(ctx, t.run.OrganizationID, t.run.EntityType, nil)
	t.publish(ctx)
	t.o.metrics.RecordRun(ctx, t.run)

	fields := []zap.Field{zap.Duration("duration", t.run.Duration(t.o.now()))}
	if t.run.Pull != nil {
		fields = append(fields,
			zap.Int("pulled", t.run.Pull.Processed),
			zap.Int("pull_errors", t.run.Pull.Errors),
		)
	}
	if t.run.Push != nil {
		fields = append(fields,
			zap.Int("pushed", t.run.Push.Processed),
			zap.Int("push_errors", t.run.Push.Errors),
		)
	}
	t.log.Info("Sync run completed", fields...)
	return t.run, nil
}

// fail finishes the run with cause as its reason and returns cause
func (t *runTracker) fail(ctx context.Context, cause error) (*catalogsync.SyncRun, error) {
	if err := t.run.Fail(cause.Error(), t.o.now()); err != nil {
		t.log.Warn("Sync run already finished", zap.Error(err))
	}
	t.o.release(ctx, t.run.OrganizationID, t.run.EntityType, cause)
	t.publish(ctx)
	t.o.metrics.RecordRun(ctx, t.run)
	t.log.Warn("Sync run failed",
		zap.String("step", t.run.CurrentStep),
		zap.Int("progress", t.run.Progress),
		zap.Error(cause),
	)
	return t.run, cause
}

func (t *runTracker) publish(ctx context.Context) {
	t.o.saveRun(ctx, t.run)
	if t.progress != nil {
		t.progress(*t.run)
	}
}
