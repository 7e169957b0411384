package catalogsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// PullExecutor fetches remote entities in chunks and upserts them into the mirror
type PullExecutor struct {
	resolver      *CatalogResolver
	mirror        catalogsync.MirrorRepository
	metrics       MetricsRecorder
	logger        *zap.Logger
	batchSize     int
	chunkInterval time.Duration
	chunkTimeout  time.Duration
	now           func() time.Time
}

// NewPullExecutor creates a new PullExecutor
func NewPullExecutor(
	resolver *CatalogResolver,
	mirror catalogsync.MirrorRepository,
	settings Settings,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *PullExecutor {
	settings = settings.withDefaults()
	return &PullExecutor{
		resolver:      resolver,
		mirror:        mirror,
		metrics:       metricsOrNoop(metrics),
		logger:        nopIfNil(logger).Named("pull"),
		batchSize:     settings.BatchSize,
		chunkInterval: settings.ChunkInterval,
		chunkTimeout:  settings.ChunkTimeout,
		now:           time.Now,
	}
}

// Pull fetches the given ids and upserts them into the mirror.
// batchSize <= 0 uses the configured default. A context that is already done
// fails every id without resolving the remote.
func (p *PullExecutor) Pull(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, ids []int64, batchSize int) (*catalogsync.PullResult, error) {
	if len(ids) == 0 {
		return nil, catalogsync.ErrNoIDs
	}
	if err := ctx.Err(); err != nil {
		acc := newPullAccumulator(len(ids))
		acc.fail(ids)
		return acc.result(), fmt.Errorf("pull %s interrupted: %w", entityType, err)
	}
	resource, err := p.resolver.Resource(ctx, orgID, entityType)
	if err != nil {
		return nil, err
	}
	return p.pull(ctx, orgID, resource, ids, batchSize)
}

// pull processes ids chunk by chunk. A failed fetch fails every id of its chunk
// and the run goes on with the next chunk. A local store failure or a cancelled
// context stops the pull; the ids not reached are counted as failed and the
// partial result is returned with the error.
func (p *PullExecutor) pull(ctx context.Context, orgID uuid.UUID, resource integration.RemoteResource, ids []int64, batchSize int) (*catalogsync.PullResult, error) {
	if batchSize <= 0 {
		batchSize = p.batchSize
	}
	entityType := resource.EntityType()
	log := scoped(ctx, p.logger).With(
		zap.String("organization_id", orgID.String()),
		zap.String("entity_type", entityType.String()),
	)

	acc := newPullAccumulator(len(ids))
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.chunkInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(p.chunkInterval), 1)
	}

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		chunk := ids[start:end]

		if err := limiter.Wait(ctx); err != nil {
			acc.fail(ids[start:])
			return p.finish(ctx, entityType, acc, log), fmt.Errorf("pull %s interrupted: %w", entityType, err)
		}

		records, err := p.fetchChunk(ctx, resource, chunk)
		if err != nil {
			log.Warn("Pull chunk failed",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			acc.fail(chunk)
			continue
		}

		if err := p.store(ctx, orgID, entityType, records); err != nil {
			acc.fail(ids[start:])
			log.Error("Failed to store pulled chunk", zap.Error(err))
			return p.finish(ctx, entityType, acc, log), err
		}
		acc.settle(chunk, records)
	}

	return p.finish(ctx, entityType, acc, log), nil
}

func (p *PullExecutor) fetchChunk(ctx context.Context, resource integration.RemoteResource, chunk []int64) ([]integration.RemoteRecord, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, p.chunkTimeout)
	defer cancel()
	return resource.FetchBatch(chunkCtx, chunk)
}

func (p *PullExecutor) store(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, records []integration.RemoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := p.now()
	entities := make([]*catalogsync.MirrorEntity, 0, len(records))
	// one statement cannot upsert the same key twice
	position := make(map[int64]int, len(records))
	for _, rec := range records {
		entity := catalogsync.NewMirrorEntityFromRemote(orgID, entityType, rec, now)
		if i, dup := position[rec.ID]; dup {
			entities[i] = entity
			continue
		}
		position[rec.ID] = len(entities)
		entities = append(entities, entity)
	}
	return p.mirror.Upsert(ctx, entities...)
}

func (p *PullExecutor) finish(ctx context.Context, entityType integration.EntityType, acc *pullAccumulator, log *zap.Logger) *catalogsync.PullResult {
	result := acc.result()
	p.metrics.RecordPull(ctx, entityType, result.Processed, result.Errors)
	log.Info("Pull finished",
		zap.Int("requested", result.Requested),
		zap.Int("processed", result.Processed),
		zap.Int("errors", result.Errors),
	)
	return result
}

// pullAccumulator counts every requested position exactly once
type pullAccumulator struct {
	requested int
	processed int
	errors    int
	failed    []int64
	seen      map[int64]struct{}
}

func newPullAccumulator(requested int) *pullAccumulator {
	return &pullAccumulator{
		requested: requested,
		failed:    []int64{},
		seen:      make(map[int64]struct{}),
	}
}

func (a *pullAccumulator) fail(ids []int64) {
	for _, id := range ids {
		a.errors++
		a.addFailed(id)
	}
}

// settle counts ids the remote returned as processed and the others as failed
func (a *pullAccumulator) settle(chunk []int64, records []integration.RemoteRecord) {
	returned := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		returned[rec.ID] = struct{}{}
	}
	for _, id := range chunk {
		if _, ok := returned[id]; ok {
			a.processed++
			continue
		}
		a.errors++
		a.addFailed(id)
	}
}

func (a *pullAccumulator) addFailed(id int64) {
	if _, dup := a.seen[id]; dup {
		return
	}
	a.seen[id] = struct{}{}
	a.failed = append(a.failed, id)
}

func (a *pullAccumulator) result() *catalogsync.PullResult {
	return &catalogsync.PullResult{
		Requested: a.requested,
		Processed: a.processed,
		Errors:    a.errors,
		FailedIDs: a.failed,
	}
}
