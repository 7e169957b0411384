package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// PushQueueProcessor replays due queue items against the remote catalog
type PushQueueProcessor struct {
	resolver     *CatalogResolver
	mirror       catalogsync.MirrorRepository
	queue        catalogsync.SyncQueueRepository
	metrics      MetricsRecorder
	logger       *zap.Logger
	batchSize    int
	lease        time.Duration
	failRejected bool
	now          func() time.Time
}

// NewPushQueueProcessor creates a new PushQueueProcessor
func NewPushQueueProcessor(
	resolver *CatalogResolver,
	mirror catalogsync.MirrorRepository,
	queue catalogsync.SyncQueueRepository,
	settings Settings,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *PushQueueProcessor {
	settings = settings.withDefaults()
	return &PushQueueProcessor{
		resolver:     resolver,
		mirror:       mirror,
		queue:        queue,
		metrics:      metricsOrNoop(metrics),
		logger:       nopIfNil(logger).Named("push"),
		batchSize:    settings.QueueBatchSize,
		lease:        settings.ProcessingLease,
		failRejected: settings.FailRejectedImmediately,
		now:          time.Now,
	}
}

// ProcessQueue runs one pass over the organization's due items of every entity type
func (p *PushQueueProcessor) ProcessQueue(ctx context.Context, orgID uuid.UUID, batchSize, maxRetries int) (*catalogsync.PushResult, error) {
	return p.ProcessQueueFor(ctx, orgID, nil, batchSize, maxRetries)
}

// ProcessQueueFor runs one pass over due items, optionally restricted to one entity type.
// Up to batchSize items are taken in priority desc, created_at asc order. When
// maxRetries > 0 it caps the max_attempts of every item it touches.
//
// Items of the organization left in processing for longer than the lease are
// first returned to pending (or failed once their attempts are spent).
//
// Remote failures are recorded on the item and never stop the pass. A missing
// integration or a local store failure stops the pass and is returned.
func (p *PushQueueProcessor) ProcessQueueFor(ctx context.Context, orgID uuid.UUID, entityType *integration.EntityType, batchSize, maxRetries int) (*catalogsync.PushResult, error) {
	if orgID == uuid.Nil {
		return nil, catalogsync.ErrInvalidOrganization
	}
	if entityType != nil && !entityType.IsValid() {
		return nil, integration.ErrUnknownEntityType
	}
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	now := p.now()
	released, err := p.queue.ReleaseExpiredLeases(ctx, &orgID, now.Add(-p.lease), now)
	if err != nil {
		return nil, err
	}
	items, err := p.queue.FindDue(ctx, orgID, catalogsync.DueFilter{
		EntityType: entityType,
		Now:        now,
		Limit:      batchSize,
	})
	if err != nil {
		return nil, err
	}

	pass := &pushPass{
		orgID:      orgID,
		maxRetries: maxRetries,
		resources:  make(map[integration.EntityType]integration.RemoteResource),
		resolved:   make(map[provisionalKey]int64),
		result:     &catalogsync.PushResult{FailedItems: []uuid.UUID{}},
		log: scoped(ctx, p.logger).With(
			zap.String("organization_id", orgID.String()),
		),
	}
	if released > 0 {
		pass.log.Warn("Expired processing leases released", zap.Int64("count", released))
	}
	if len(items) == 0 {
		return pass.result, nil
	}

	var catalog integration.RemoteCatalog
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return pass.result, err
		}
		if catalog == nil {
			if catalog, err = p.resolver.Catalog(ctx, orgID); err != nil {
				return pass.result, err
			}
		}
		if err := p.processItem(ctx, pass, catalog, item); err != nil {
			return pass.result, err
		}
	}

	pass.log.Info("Queue pass finished",
		zap.Int("due", len(items)),
		zap.Int("processed", pass.result.Processed),
		zap.Int("errors", pass.result.Errors),
		zap.Int("deferred", pass.result.Deferred),
	)
	return pass.result, nil
}

type provisionalKey struct {
	entityType integration.EntityType
	id         int64
}

// pushPass is the state of one ProcessQueueFor call
type pushPass struct {
	orgID      uuid.UUID
	maxRetries int
	resources  map[integration.EntityType]integration.RemoteResource
	// resolved maps provisional ids created during this pass to their remote ids
	resolved map[provisionalKey]int64
	result   *catalogsync.PushResult
	log      *zap.Logger
}

func (p *PushQueueProcessor) processItem(ctx context.Context, pass *pushPass, catalog integration.RemoteCatalog, item *catalogsync.SyncQueueItem) error {
	if item.EntityID < 0 && item.Operation != catalogsync.QueueOperationCreate {
		remoteID, ok := pass.resolved[provisionalKey{item.EntityType, item.EntityID}]
		if !ok {
			// waits for the create of the same entity
			pass.result.Deferred++
			return nil
		}
		item.EntityID = remoteID
	}

	resource, ok := pass.resources[item.EntityType]
	if !ok {
		var err error
		if resource, err = catalog.Resource(item.EntityType); err != nil {
			return err
		}
		pass.resources[item.EntityType] = resource
	}

	if pass.maxRetries > 0 && pass.maxRetries < item.MaxAttempts {
		item.MaxAttempts = pass.maxRetries
	}
	now := p.now()
	if !item.IsDue(now) {
		pass.result.Deferred++
		return nil
	}
	if err := item.MarkProcessing(now); err != nil {
		pass.result.Deferred++
		return nil
	}
	claimed, err := p.queue.Claim(ctx, item)
	if err != nil {
		return err
	}
	if !claimed {
		pass.result.Deferred++
		return nil
	}

	log := pass.log.With(
		zap.String("item_id", item.ID.String()),
		zap.String("entity_type", item.EntityType.String()),
		zap.Int64("entity_id", item.EntityID),
		zap.String("operation", item.Operation.String()),
		zap.Int("attempt", item.Attempts),
	)

	pushErr := p.dispatch(ctx, pass, resource, item)
	// the claimed row must leave processing even when ctx ended mid push
	persistCtx := context.WithoutCancel(ctx)
	now = p.now()
	if pushErr == nil {
		if err := item.MarkCompleted(now); err != nil {
			return err
		}
		pass.result.Processed++
		p.metrics.RecordPush(ctx, item.EntityType, item.Operation, true)
		log.Debug("Queue item pushed")
		return p.queue.Update(persistCtx, item)
	}

	if p.failRejected && integration.IsRejected(pushErr) {
		err = item.MarkFailedPermanently(pushErr.Error(), now)
	} else {
		err = item.MarkFailed(pushErr.Error(), now)
	}
	if err != nil {
		return err
	}
	pass.result.Errors++
	pass.result.FailedItems = append(pass.result.FailedItems, item.ID)
	p.metrics.RecordPush(ctx, item.EntityType, item.Operation, false)

	if item.Status == catalogsync.QueueStatusFailed {
		log.Warn("Queue item failed permanently", zap.Error(pushErr))
	} else {
		log.Info("Queue item rescheduled",
			zap.Time("scheduled_at", item.ScheduledAt),
			zap.Error(pushErr),
		)
	}
	if err := p.queue.Update(persistCtx, item); err != nil {
		return err
	}
	if errors.Is(pushErr, integration.ErrLocalStore) {
		return pushErr
	}
	return nil
}

func (p *PushQueueProcessor) dispatch(ctx context.Context, pass *pushPass, resource integration.RemoteResource, item *catalogsync.SyncQueueItem) error {
	switch item.Operation {
	case catalogsync.QueueOperationCreate:
		rec, err := resource.Create(ctx, item.Data)
		if err != nil {
			return err
		}
		if rec == nil || rec.ID <= 0 {
			return fmt.Errorf("%w: create returned no id", integration.ErrInvalidRemoteResponse)
		}
		return p.backfill(ctx, pass, item, rec)

	case catalogsync.QueueOperationUpdate:
		rec, err := resource.Update(ctx, item.EntityID, item.Data)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		return p.recordPushed(ctx, item, rec)

	case catalogsync.QueueOperationDelete:
		if err := resource.Delete(ctx, item.EntityID); err != nil && !integration.IsNotFound(err) {
			return err
		}
		return p.mirror.Delete(ctx, item.OrganizationID, item.EntityType, item.EntityID)

	default:
		return fmt.Errorf("%w: unknown operation %q", catalogsync.ErrInvalidQueueItem, item.Operation)
	}
}

// backfill replaces the provisional id of a created entity with the remote id
// in the mirror row and in every queue item that is not completed
func (p *PushQueueProcessor) backfill(ctx context.Context, pass *pushPass, item *catalogsync.SyncQueueItem, rec *integration.RemoteRecord) error {
	provisional := item.EntityID
	if provisional < 0 {
		err := p.mirror.ReassignRemoteID(ctx, item.OrganizationID, item.EntityType, provisional, rec.ID)
		if err != nil && !errors.Is(err, catalogsync.ErrMirrorEntityNotFound) {
			return err
		}
		moved, err := p.queue.ReassignEntityID(ctx, item.OrganizationID, item.EntityType, provisional, rec.ID)
		if err != nil {
			return err
		}
		pass.resolved[provisionalKey{item.EntityType, provisional}] = rec.ID
		item.EntityID = rec.ID
		pass.log.Info("Provisional id resolved",
			zap.String("entity_type", item.EntityType.String()),
			zap.Int64("provisional_id", provisional),
			zap.Int64("remote_id", rec.ID),
			zap.Int64("queue_items_moved", moved),
		)
	}
	return p.recordPushed(ctx, item, rec)
}

// recordPushed stores the remote version of a pushed entity unless the row
// changed again after the item's snapshot was taken
func (p *PushQueueProcessor) recordPushed(ctx context.Context, item *catalogsync.SyncQueueItem, rec *integration.RemoteRecord) error {
	entity, err := p.mirror.FindByRemoteID(ctx, item.OrganizationID, item.EntityType, rec.ID)
	if errors.Is(err, catalogsync.ErrMirrorEntityNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if entity.IsPendingDelete() {
		return nil
	}
	if entity.LocalModifiedAt != nil && entity.LocalModifiedAt.After(item.CreatedAt) {
		return nil
	}
	entity.ApplyRemote(*rec, p.now())
	return p.mirror.Save(ctx, entity)
}
