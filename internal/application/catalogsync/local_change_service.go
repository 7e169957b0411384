package catalogsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// LocalChangeService mutates the mirror on behalf of local collaborators.
// Every mutation marks the row dirty and enqueues the push that propagates it.
type LocalChangeService struct {
	mirror      catalogsync.MirrorRepository
	queue       catalogsync.SyncQueueRepository
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

// NewLocalChangeService creates a new LocalChangeService
func NewLocalChangeService(
	mirror catalogsync.MirrorRepository,
	queue catalogsync.SyncQueueRepository,
	settings Settings,
	logger *zap.Logger,
) *LocalChangeService {
	settings = settings.withDefaults()
	return &LocalChangeService{
		mirror:      mirror,
		queue:       queue,
		logger:      nopIfNil(logger).Named("local"),
		maxAttempts: settings.MaxRetries,
		now:         time.Now,
	}
}

// LocalChange is the outcome of a local mutation
type LocalChange struct {
	Entity *catalogsync.MirrorEntity
	// Item is the queued push, nil when nothing needs to reach the remote
	Item *catalogsync.SyncQueueItem
}

// CreateLocal stores a new entity under a provisional id and queues its remote create
func (s *LocalChangeService) CreateLocal(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, payload json.RawMessage) (*LocalChange, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	if !catalogsync.IsJSONObject(payload) {
		return nil, catalogsync.ErrInvalidPayload
	}
	provisionalID, err := s.mirror.NextProvisionalID(ctx, orgID, entityType)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entity, err := catalogsync.NewLocalEntity(orgID, entityType, provisionalID, payload, now)
	if err != nil {
		return nil, err
	}
	item, err := catalogsync.NewSyncQueueItem(orgID, entityType, provisionalID, catalogsync.QueueOperationCreate, payload, s.maxAttempts, now)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Save(ctx, entity); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	s.logChange(ctx, "Local entity created", entity, item)
	return &LocalChange{Entity: entity, Item: item}, nil
}

// UpdateLocal merges patch into the stored payload and queues an update with the merged snapshot.
// Updates of provisional entities are pushed after their create resolves the remote id.
func (s *LocalChangeService) UpdateLocal(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64, patch json.RawMessage) (*LocalChange, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	entity, err := s.mirror.FindByRemoteID(ctx, orgID, entityType, remoteID)
	if err != nil {
		return nil, err
	}
	if entity.IsPendingDelete() {
		return nil, catalogsync.ErrEntityPendingDelete
	}
	now := s.now()
	if err := entity.ApplyLocalChange(patch, now); err != nil {
		return nil, err
	}
	item, err := catalogsync.NewSyncQueueItem(orgID, entityType, remoteID, catalogsync.QueueOperationUpdate, entity.Payload, s.maxAttempts, now)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Save(ctx, entity); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	s.logChange(ctx, "Local entity updated", entity, item)
	return &LocalChange{Entity: entity, Item: item}, nil
}

// DeleteLocal deletes an entity. A provisional entity never reached the remote, so
// its row and pending items are simply dropped. Otherwise the row is kept, marked
// deleted, and removed once the queued remote delete is confirmed.
func (s *LocalChangeService) DeleteLocal(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) (*LocalChange, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	entity, err := s.mirror.FindByRemoteID(ctx, orgID, entityType, remoteID)
	if err != nil {
		return nil, err
	}

	if entity.IsProvisional() {
		if _, err := s.queue.CancelPending(ctx, orgID, entityType, remoteID); err != nil {
			return nil, err
		}
		if err := s.mirror.Delete(ctx, orgID, entityType, remoteID); err != nil {
			return nil, err
		}
		s.logChange(ctx, "Provisional entity dropped", entity, nil)
		return &LocalChange{Entity: entity}, nil
	}

	if entity.IsPendingDelete() {
		return &LocalChange{Entity: entity}, nil
	}

	now := s.now()
	entity.MarkDeletedLocally(now)
	item, err := catalogsync.NewSyncQueueItem(orgID, entityType, remoteID, catalogsync.QueueOperationDelete, nil, s.maxAttempts, now)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Save(ctx, entity); err != nil {
		return nil, err
	}
	// pending updates would only recreate fields of an entity about to disappear
	if _, err := s.queue.CancelPending(ctx, orgID, entityType, remoteID); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	s.logChange(ctx, "Local entity deleted", entity, item)
	return &LocalChange{Entity: entity, Item: item}, nil
}

// Get returns one mirrored entity
func (s *LocalChangeService) Get(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) (*catalogsync.MirrorEntity, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	return s.mirror.FindByRemoteID(ctx, orgID, entityType, remoteID)
}

// List returns a page of mirrored entities
func (s *LocalChangeService) List(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, filter catalogsync.MirrorFilter) (*MirrorListResult, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	filter.Page, filter.PageSize = normalizePaging(filter.Page, filter.PageSize)
	entities, total, err := s.mirror.List(ctx, orgID, entityType, filter)
	if err != nil {
		return nil, err
	}
	items := make([]MirrorEntityDTO, len(entities))
	for i, e := range entities {
		items[i] = ToMirrorEntityDTO(e)
	}
	return &MirrorListResult{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages(total, filter.PageSize),
	}, nil
}

func (s *LocalChangeService) logChange(ctx context.Context, msg string, entity *catalogsync.MirrorEntity, item *catalogsync.SyncQueueItem) {
	fields := []zap.Field{
		zap.String("organization_id", entity.OrganizationID.String()),
		zap.String("entity_type", entity.EntityType.String()),
		zap.Int64("remote_id", entity.RemoteID),
	}
	if item != nil {
		fields = append(fields, zap.String("item_id", item.ID.String()))
	}
	scoped(ctx, s.logger).Info(msg, fields...)
}
