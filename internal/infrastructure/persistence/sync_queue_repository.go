package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/persistence/models"
)

const defaultDueLimit = 50

var activeStatuses = []catalogsync.QueueStatus{catalogsync.QueueStatusPending, catalogsync.QueueStatusProcessing}

// GormSyncQueueRepository implements catalogsync.SyncQueueRepository using GORM
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GormSyncQueueRepository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// Enqueue inserts new items
func (r *GormSyncQueueRepository) Enqueue(ctx context.Context, items ...*catalogsync.SyncQueueItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.SyncQueueModel, len(items))
	for i, item := range items {
		rows[i].FromDomain(item)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, upsertBatchSize).Error; err != nil {
		return storeError("enqueue", err)
	}
	return nil
}

// FindByID finds an item of an organization
func (r *GormSyncQueueRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error) {
	var model models.SyncQueueModel
	if err := r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Where("id = ?", id).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogsync.ErrQueueItemNotFound
		}
		return nil, storeError("find queue item", err)
	}
	return model.ToDomain(), nil
}

// FindDue returns pending items whose scheduled time has passed, highest
// priority first and oldest first within a priority
func (r *GormSyncQueueRepository) FindDue(ctx context.Context, orgID uuid.UUID, filter catalogsync.DueFilter) ([]*catalogsync.SyncQueueItem, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDueLimit
	}
	query := r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Where("status = ? AND scheduled_at <= ?", catalogsync.QueueStatusPending, filter.Now.UTC())
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}

	var rows []models.SyncQueueModel
	if err := query.
		Order("priority DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, storeError("find due items", err)
	}
	return toQueueItems(rows), nil
}

// Claim moves an item to processing only if it is still pending
func (r *GormSyncQueueRepository) Claim(ctx context.Context, item *catalogsync.SyncQueueItem) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Where("id = ? AND status = ?", item.ID, catalogsync.QueueStatusPending).
		Updates(map[string]any{
			"status":     item.Status,
			"attempts":   item.Attempts,
			"updated_at": item.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return false, storeError("claim queue item", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Update persists the item's mutable columns
func (r *GormSyncQueueRepository) Update(ctx context.Context, item *catalogsync.SyncQueueItem) error {
	var model models.SyncQueueModel
	model.FromDomain(item)
	result := r.db.WithContext(ctx).
		Model(&model).
		Select("entity_id", "data", "status", "attempts", "max_attempts", "priority",
			"scheduled_at", "last_error", "completed_at", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return storeError("update queue item", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalogsync.ErrQueueItemNotFound
	}
	return nil
}

// FindActive returns the entity ids and operations of pending and processing items
func (r *GormSyncQueueRepository) FindActive(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) ([]catalogsync.QueuedRef, error) {
	var refs []catalogsync.QueuedRef
	if err := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Scopes(OrganizationScope(orgID)).
		Where("entity_type = ? AND status IN ?", entityType, activeStatuses).
		Select("entity_id", "operation").
		Scan(&refs).Error; err != nil {
		return nil, storeError("find active items", err)
	}
	return refs, nil
}

// FindByStatus returns a page of items, newest first
func (r *GormSyncQueueRepository) FindByStatus(ctx context.Context, orgID uuid.UUID, status *catalogsync.QueueStatus, page, pageSize int) ([]*catalogsync.SyncQueueItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncQueueModel{}).Scopes(OrganizationScope(orgID))
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError("count queue items", err)
	}

	var rows []models.SyncQueueModel
	if err := query.
		Scopes(Paginate(page, pageSize)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, storeError("list queue items", err)
	}
	return toQueueItems(rows), total, nil
}

// CountByStatus returns counts for every status, zero when absent
func (r *GormSyncQueueRepository) CountByStatus(ctx context.Context, orgID uuid.UUID) (map[catalogsync.QueueStatus]int64, error) {
	var rows []struct {
		Status catalogsync.QueueStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Scopes(OrganizationScope(orgID)).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, storeError("count by status", err)
	}

	counts := map[catalogsync.QueueStatus]int64{
		catalogsync.QueueStatusPending:    0,
		catalogsync.QueueStatusProcessing: 0,
		catalogsync.QueueStatusCompleted:  0,
		catalogsync.QueueStatusFailed:     0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ReassignEntityID points items that are not completed at the entity's new id
func (r *GormSyncQueueRepository) ReassignEntityID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, fromID, toID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Scopes(OrganizationScope(orgID)).
		Where("entity_type = ? AND entity_id = ? AND status <> ?", entityType, fromID, catalogsync.QueueStatusCompleted).
		Updates(map[string]any{"entity_id": toID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return 0, storeError("reassign queue entity id", result.Error)
	}
	return result.RowsAffected, nil
}

// CancelPending removes the pending items of one entity
func (r *GormSyncQueueRepository) CancelPending(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, entityID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Where("entity_type = ? AND entity_id = ? AND status = ?", entityType, entityID, catalogsync.QueueStatusPending).
		Delete(&models.SyncQueueModel{})
	if result.Error != nil {
		return 0, storeError("cancel pending items", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes an item
func (r *GormSyncQueueRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Where("id = ?", id).
		Delete(&models.SyncQueueModel{})
	if result.Error != nil {
		return storeError("delete queue item", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalogsync.ErrQueueItemNotFound
	}
	return nil
}

// OrganizationsWithDue lists organizations holding due items
func (r *GormSyncQueueRepository) OrganizationsWithDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Where("status = ? AND scheduled_at <= ?", catalogsync.QueueStatusPending, now.UTC()).
		Distinct().
		Pluck("organization_id", &ids).Error; err != nil {
		return nil, storeError("organizations with due items", err)
	}
	return ids, nil
}

// DeleteCompletedBefore purges completed items finished before the cutoff
func (r *GormSyncQueueRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", catalogsync.QueueStatusCompleted, before.UTC()).
		Delete(&models.SyncQueueModel{})
	if result.Error != nil {
		return 0, storeError("purge completed items", result.Error)
	}
	return result.RowsAffected, nil
}

// ReleaseExpiredLeases returns abandoned processing items to pending, or fails
// them when no attempt is left
func (r *GormSyncQueueRepository) ReleaseExpiredLeases(ctx context.Context, orgID *uuid.UUID, leasedBefore, now time.Time) (int64, error) {
	now = now.UTC()
	var released int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := func() *gorm.DB {
			q := tx.Model(&models.SyncQueueModel{}).
				Where("status = ? AND updated_at < ?", catalogsync.QueueStatusProcessing, leasedBefore.UTC())
			if orgID != nil {
				q = q.Scopes(OrganizationScope(*orgID))
			}
			return q
		}

		exhausted := expired().
			Where("attempts >= max_attempts").
			Updates(map[string]any{
				"status":     catalogsync.QueueStatusFailed,
				"last_error": catalogsync.LeaseExpiredError,
				"updated_at": now,
			})
		if exhausted.Error != nil {
			return exhausted.Error
		}
		retried := expired().
			Where("attempts < max_attempts").
			Updates(map[string]any{
				"status":       catalogsync.QueueStatusPending,
				"scheduled_at": now,
				"last_error":   catalogsync.LeaseExpiredError,
				"updated_at":   now,
			})
		if retried.Error != nil {
			return retried.Error
		}
		released = exhausted.RowsAffected + retried.RowsAffected
		return nil
	})
	if err != nil {
		return 0, storeError("release expired leases", err)
	}
	return released, nil
}

func toQueueItems(rows []models.SyncQueueModel) []*catalogsync.SyncQueueItem {
	items := make([]*catalogsync.SyncQueueItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items
}

var _ catalogsync.SyncQueueRepository = (*GormSyncQueueRepository)(nil)
