package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/persistence/models"
)

// GormSyncStatusRepository implements catalogsync.SyncStatusRepository using GORM
type GormSyncStatusRepository struct {
	db *gorm.DB
}

// NewGormSyncStatusRepository creates a new GormSyncStatusRepository
func NewGormSyncStatusRepository(db *gorm.DB) *GormSyncStatusRepository {
	return &GormSyncStatusRepository{db: db}
}

func (r *GormSyncStatusRepository) pair(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.SyncStatusModel{}).
		Scopes(OrganizationScope(orgID)).
		Where("entity_type = ?", entityType)
}

// Get returns the status row of a pair
func (r *GormSyncStatusRepository) Get(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*catalogsync.SyncStatus, error) {
	var model models.SyncStatusModel
	if err := r.pair(ctx, orgID, entityType).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogsync.ErrSyncStatusNotFound
		}
		return nil, storeError("get sync status", err)
	}
	return model.ToDomain(), nil
}

// ListByOrganization returns every status row of an organization
func (r *GormSyncStatusRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*catalogsync.SyncStatus, error) {
	var rows []models.SyncStatusModel
	if err := r.db.WithContext(ctx).
		Scopes(OrganizationScope(orgID)).
		Order("entity_type ASC").
		Find(&rows).Error; err != nil {
		return nil, storeError("list sync status", err)
	}
	out := make([]*catalogsync.SyncStatus, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// TryBeginSync takes the run guard with a conditional update. The row is
// created idle first so the update has something to match.
func (r *GormSyncStatusRepository) TryBeginSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, now, staleBefore time.Time) (bool, error) {
	now = now.UTC()
	seed := models.SyncStatusModel{OrganizationID: orgID, EntityType: entityType, UpdatedAt: now}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return false, storeError("seed sync status", err)
	}

	result := r.pair(ctx, orgID, entityType).
		Where("is_syncing = ? OR started_at IS NULL OR started_at < ?", false, staleBefore.UTC()).
		Updates(map[string]any{
			"is_syncing": true,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, storeError("begin sync", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FinishSync releases the guard and records the outcome
func (r *GormSyncStatusRepository) FinishSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, outcome catalogsync.SyncOutcome) error {
	finished := outcome.FinishedAt.UTC()
	updates := map[string]any{
		"is_syncing": false,
		"last_error": outcome.Error,
		"updated_at": finished,
	}
	if outcome.Succeeded {
		updates["last_sync_time"] = finished
		updates["last_error"] = ""
	}
	result := r.pair(ctx, orgID, entityType).Updates(updates)
	if result.Error != nil {
		return storeError("finish sync", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalogsync.ErrSyncStatusNotFound
	}
	return nil
}

// SaveDiscovery stores the discovery result as the pair's metadata
func (r *GormSyncStatusRepository) SaveDiscovery(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, result *catalogsync.DiscoveryResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	row := models.SyncStatusModel{
		OrganizationID: orgID,
		EntityType:     entityType,
		Metadata:       datatypes.JSON(data),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "entity_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"metadata", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return storeError("save discovery", err)
	}
	return nil
}

var _ catalogsync.SyncStatusRepository = (*GormSyncStatusRepository)(nil)
