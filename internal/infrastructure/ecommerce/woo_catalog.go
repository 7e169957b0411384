package ecommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/integration"
)

// wooCatalog is the RemoteCatalog of one store
type wooCatalog struct {
	client    *WooClient
	resources map[integration.EntityType]integration.RemoteResource
}

// NewWooCatalog builds the catalog for one store
func NewWooCatalog(config *WooConfig, logger *zap.Logger) (integration.RemoteCatalog, error) {
	client, err := NewWooClient(config, logger)
	if err != nil {
		return nil, err
	}
	return newWooCatalog(client), nil
}

func newWooCatalog(client *WooClient) *wooCatalog {
	return &wooCatalog{
		client: client,
		resources: map[integration.EntityType]integration.RemoteResource{
			integration.EntityTypeProducts:  newProductResource(client),
			integration.EntityTypeCustomers: newCustomerResource(client),
			integration.EntityTypeOrders:    newOrderResource(client),
		},
	}
}

// Resource returns the resource serving an entity type
func (c *wooCatalog) Resource(entityType integration.EntityType) (integration.RemoteResource, error) {
	r, ok := c.resources[entityType]
	if !ok {
		return nil, integration.ErrUnknownEntityType
	}
	return r, nil
}

// Ping lists a single product id to verify endpoint and credentials
func (c *wooCatalog) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("per_page", "1")
	q.Set("_fields", "id")
	if _, err := c.client.doRequest(ctx, http.MethodGet, integration.EntityTypeProducts.ResourcePath(), q, nil); err != nil {
		return fmt.Errorf("ping %s: %w", c.client.config.BaseURL, err)
	}
	return nil
}

// WooCatalogFactory builds and caches one catalog per organization.
// A cached catalog is rebuilt when the organization's credentials change.
type WooCatalogFactory struct {
	defaults WooConfig
	logger   *zap.Logger

	mu       sync.RWMutex
	catalogs map[uuid.UUID]cachedCatalog
}

type cachedCatalog struct {
	fingerprint string
	catalog     integration.RemoteCatalog
}

// NewWooCatalogFactory creates a factory. Only the transport settings of
// defaults (timeout, page size, rate) are used; endpoints come from integrations.
func NewWooCatalogFactory(defaults WooConfig, logger *zap.Logger) *WooCatalogFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WooCatalogFactory{
		defaults: defaults,
		logger:   logger.Named("woocommerce"),
		catalogs: make(map[uuid.UUID]cachedCatalog),
	}
}

// ForIntegration returns the catalog for an organization's integration
func (f *WooCatalogFactory) ForIntegration(_ context.Context, ri *integration.RemoteIntegration) (integration.RemoteCatalog, error) {
	if ri == nil {
		return nil, integration.ErrConfiguration
	}
	if err := ri.Usable(); err != nil {
		return nil, err
	}

	cfg := f.defaults
	cfg.BaseURL = ri.BaseURL
	cfg.ConsumerKey = ri.ConsumerKey
	cfg.ConsumerSecret = ri.ConsumerSecret
	cfg.InsecureSkipVerify = !ri.VerifySSL
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrConfiguration, err)
	}
	fp := cfg.Fingerprint()

	f.mu.RLock()
	cached, ok := f.catalogs[ri.OrganizationID]
	f.mu.RUnlock()
	if ok && cached.fingerprint == fp {
		return cached.catalog, nil
	}

	catalog, err := NewWooCatalog(&cfg, f.logger.With(zap.String("organization_id", ri.OrganizationID.String())))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrConfiguration, err)
	}

	f.mu.Lock()
	f.catalogs[ri.OrganizationID] = cachedCatalog{fingerprint: fp, catalog: catalog}
	f.mu.Unlock()
	return catalog, nil
}

// Evict drops the cached catalog of an organization
func (f *WooCatalogFactory) Evict(orgID uuid.UUID) {
	f.mu.Lock()
	delete(f.catalogs, orgID)
	f.mu.Unlock()
}

var _ integration.RemoteCatalogFactory = (*WooCatalogFactory)(nil)
var _ integration.RemoteResource = (*wooResource)(nil)
