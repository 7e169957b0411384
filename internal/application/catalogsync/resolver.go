package catalogsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// CatalogResolver turns an organization into the remote resource of an entity type
type CatalogResolver struct {
	integrations integration.RemoteIntegrationRepository
	factory      integration.RemoteCatalogFactory
}

// NewCatalogResolver creates a new CatalogResolver
func NewCatalogResolver(integrations integration.RemoteIntegrationRepository, factory integration.RemoteCatalogFactory) *CatalogResolver {
	return &CatalogResolver{
		integrations: integrations,
		factory:      factory,
	}
}

// Catalog returns the organization's remote catalog.
// A missing or disabled integration is a configuration error.
func (r *CatalogResolver) Catalog(ctx context.Context, orgID uuid.UUID) (integration.RemoteCatalog, error) {
	ri, err := r.integrations.FindByOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, integration.ErrIntegrationNotFound) {
			return nil, fmt.Errorf("%w: %w", integration.ErrConfiguration, err)
		}
		return nil, err
	}
	if err := ri.Usable(); err != nil {
		return nil, err
	}
	return r.factory.ForIntegration(ctx, ri)
}

// Resource returns the remote resource for one entity type
func (r *CatalogResolver) Resource(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (integration.RemoteResource, error) {
	if err := validateScope(orgID, entityType); err != nil {
		return nil, err
	}
	catalog, err := r.Catalog(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return catalog.Resource(entityType)
}

func validateScope(orgID uuid.UUID, entityType integration.EntityType) error {
	if orgID == uuid.Nil {
		return catalogsync.ErrInvalidOrganization
	}
	if !entityType.IsValid() {
		return integration.ErrUnknownEntityType
	}
	return nil
}
