package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/persistence/models"
)

// GormRemoteIntegrationRepository implements integration.RemoteIntegrationRepository using GORM
type GormRemoteIntegrationRepository struct {
	db *gorm.DB
}

// NewGormRemoteIntegrationRepository creates a new GormRemoteIntegrationRepository
func NewGormRemoteIntegrationRepository(db *gorm.DB) *GormRemoteIntegrationRepository {
	return &GormRemoteIntegrationRepository{db: db}
}

// FindByOrganization finds the organization's integration
func (r *GormRemoteIntegrationRepository) FindByOrganization(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error) {
	var model models.RemoteIntegrationModel
	if err := r.db.WithContext(ctx).Scopes(OrganizationScope(orgID)).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, storeError("find integration", err)
	}
	return model.ToDomain(), nil
}

// FindEnabled returns every enabled integration
func (r *GormRemoteIntegrationRepository) FindEnabled(ctx context.Context) ([]*integration.RemoteIntegration, error) {
	var rows []models.RemoteIntegrationModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, storeError("find enabled integrations", err)
	}
	out := make([]*integration.RemoteIntegration, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Save creates or replaces the organization's integration
func (r *GormRemoteIntegrationRepository) Save(ctx context.Context, ri *integration.RemoteIntegration) error {
	var model models.RemoteIntegrationModel
	model.FromDomain(ri)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		UpdateAll: true,
	}).Create(&model).Error; err != nil {
		return storeError("save integration", err)
	}
	return nil
}

// Delete removes the organization's integration
func (r *GormRemoteIntegrationRepository) Delete(ctx context.Context, orgID uuid.UUID) error {
	result := r.db.WithContext(ctx).Scopes(OrganizationScope(orgID)).Delete(&models.RemoteIntegrationModel{})
	if result.Error != nil {
		return storeError("delete integration", result.Error)
	}
	if result.RowsAffected == 0 {
		return integration.ErrIntegrationNotFound
	}
	return nil
}

var _ integration.RemoteIntegrationRepository = (*GormRemoteIntegrationRepository)(nil)
