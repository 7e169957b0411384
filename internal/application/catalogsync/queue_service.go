package catalogsync

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// QueueService lets collaborators enqueue local mutations and operators manage the queue
type QueueService struct {
	queue       catalogsync.SyncQueueRepository
	validate    *validator.Validate
	logger      *zap.Logger
	maxAttempts int
	lease       time.Duration
	now         func() time.Time
}

// NewQueueService creates a new QueueService
func NewQueueService(queue catalogsync.SyncQueueRepository, settings Settings, logger *zap.Logger) *QueueService {
	settings = settings.withDefaults()
	return &QueueService{
		queue:       queue,
		validate:    newValidator(),
		logger:      nopIfNil(logger).Named("queue"),
		maxAttempts: settings.MaxRetries,
		lease:       settings.ProcessingLease,
		now:         time.Now,
	}
}

// newValidator reports fields by their JSON name
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// AddToQueue enqueues one operation. Validation failures are returned as validator.ValidationErrors.
func (s *QueueService) AddToQueue(ctx context.Context, orgID uuid.UUID, input AddToQueueInput) (*catalogsync.SyncQueueItem, error) {
	if orgID == uuid.Nil {
		return nil, catalogsync.ErrInvalidOrganization
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.maxAttempts
	}
	item, err := catalogsync.NewSyncQueueItem(
		orgID,
		integration.EntityType(input.EntityType),
		input.EntityID,
		catalogsync.QueueOperation(input.Operation),
		input.Data,
		maxAttempts,
		s.now(),
	)
	if err != nil {
		return nil, err
	}
	if input.Priority != nil {
		item.Priority = *input.Priority
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}
	scoped(ctx, s.logger).Info("Queue item added",
		zap.String("organization_id", orgID.String()),
		zap.String("item_id", item.ID.String()),
		zap.String("entity_type", input.EntityType),
		zap.Int64("entity_id", item.EntityID),
		zap.String("operation", input.Operation),
	)
	return item, nil
}

// GetQueueStatus returns item counts per status
func (s *QueueService) GetQueueStatus(ctx context.Context, orgID uuid.UUID) (*QueueStatusDTO, error) {
	counts, err := s.queue.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	dto := &QueueStatusDTO{
		Pending:    counts[catalogsync.QueueStatusPending],
		Processing: counts[catalogsync.QueueStatusProcessing],
		Completed:  counts[catalogsync.QueueStatusCompleted],
		Failed:     counts[catalogsync.QueueStatusFailed],
	}
	dto.Total = dto.Pending + dto.Processing + dto.Completed + dto.Failed
	return dto, nil
}

// ListItems returns a page of items, filtered by status when status is not empty
func (s *QueueService) ListItems(ctx context.Context, orgID uuid.UUID, status string, page, pageSize int) (*QueueListResult, error) {
	var filter *catalogsync.QueueStatus
	if status != "" {
		st := catalogsync.QueueStatus(status)
		if !st.IsValid() {
			return nil, catalogsync.ErrInvalidQueueItem
		}
		filter = &st
	}
	page, pageSize = normalizePaging(page, pageSize)

	items, total, err := s.queue.FindByStatus(ctx, orgID, filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	dtos := make([]QueueItemDTO, len(items))
	for i, item := range items {
		dtos[i] = ToQueueItemDTO(item)
	}
	return &QueueListResult{
		Items:      dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// GetItem returns one queue item
func (s *QueueService) GetItem(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error) {
	return s.queue.FindByID(ctx, orgID, id)
}

// RequeueFailed puts a failed item back to pending with a fresh attempt budget.
// An item stuck in processing past its lease is taken back first.
func (s *QueueService) RequeueFailed(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error) {
	item, err := s.queue.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if item.LeaseExpired(now, s.lease) {
		err = item.RequeueAbandoned(now, s.lease)
	} else {
		err = item.Requeue(now)
	}
	if err != nil {
		return nil, err
	}
	if err := s.queue.Update(ctx, item); err != nil {
		return nil, err
	}
	scoped(ctx, s.logger).Info("Queue item requeued",
		zap.String("organization_id", orgID.String()),
		zap.String("item_id", id.String()),
	)
	return item, nil
}

// RequeueAllFailed requeues every failed item of the organization
func (s *QueueService) RequeueAllFailed(ctx context.Context, orgID uuid.UUID) (int, error) {
	failed := catalogsync.QueueStatusFailed
	requeued := 0
	for {
		items, _, err := s.queue.FindByStatus(ctx, orgID, &failed, 1, 100)
		if err != nil {
			return requeued, err
		}
		if len(items) == 0 {
			break
		}
		now := s.now()
		for _, item := range items {
			if err := item.Requeue(now); err != nil {
				return requeued, err
			}
			if err := s.queue.Update(ctx, item); err != nil {
				return requeued, err
			}
			requeued++
		}
	}
	if requeued > 0 {
		scoped(ctx, s.logger).Info("Failed queue items requeued",
			zap.String("organization_id", orgID.String()),
			zap.Int("count", requeued),
		)
	}
	return requeued, nil
}

// DeleteItem removes an item that is not being processed. Items whose
// processing lease expired count as abandoned and can be removed.
func (s *QueueService) DeleteItem(ctx context.Context, orgID, id uuid.UUID) error {
	item, err := s.queue.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if item.Status == catalogsync.QueueStatusProcessing && !item.LeaseExpired(s.now(), s.lease) {
		return catalogsync.ErrInvalidQueueTransition
	}
	return s.queue.Delete(ctx, orgID, id)
}
