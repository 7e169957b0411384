package integration

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// EntityType
// ---------------------------------------------------------------------------

// EntityType identifies a kind of mirrored entity
type EntityType string

const (
	// EntityTypeProducts is the product catalog
	EntityTypeProducts EntityType = "products"
	// EntityTypeCustomers is the customer list
	EntityTypeCustomers EntityType = "customers"
	// EntityTypeOrders is the order list
	EntityTypeOrders EntityType = "orders"
)

// AllEntityTypes returns every supported entity type in sync order
func AllEntityTypes() []EntityType {
	return []EntityType{EntityTypeProducts, EntityTypeCustomers, EntityTypeOrders}
}

// IsValid returns true if the entity type is supported
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeProducts, EntityTypeCustomers, EntityTypeOrders:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityType
func (t EntityType) String() string {
	return string(t)
}

// ResourcePath returns the remote collection path for the entity type
func (t EntityType) ResourcePath() string {
	return string(t)
}

// ParseEntityType parses a case-insensitive entity type name
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrUnknownEntityType
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Remote records
// ---------------------------------------------------------------------------

// IndexEntry is one row of the remote catalog index
type IndexEntry struct {
	ID           int64
	LastModified time.Time
}

// RemoteRecord is a full remote entity as returned by the catalog
type RemoteRecord struct {
	ID           int64
	LastModified time.Time
	// Payload is the raw remote document
	Payload json.RawMessage
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// RemoteResource is the capability set of one entity kind on the remote catalog.
// Implementations are selected once per entity type and never switched on by callers.
type RemoteResource interface {
	// EntityType returns the entity kind served by this resource
	EntityType() EntityType

	// FetchIndex returns (id, last_modified) for every remote entity of this kind
	FetchIndex(ctx context.Context) ([]IndexEntry, error)

	// FetchBatch returns full records for the given ids.
	// Ids unknown to the remote are absent from the result.
	FetchBatch(ctx context.Context, ids []int64) ([]RemoteRecord, error)

	// Create creates an entity and returns the stored record with its assigned id
	Create(ctx context.Context, payload json.RawMessage) (*RemoteRecord, error)

	// Update replaces fields of an existing entity and returns the stored record,
	// or nil when the remote acknowledged the write without a body
	Update(ctx context.Context, id int64, payload json.RawMessage) (*RemoteRecord, error)

	// Delete removes an entity permanently
	Delete(ctx context.Context, id int64) error
}

// RemoteCatalog groups the remote resources reachable for one organization
type RemoteCatalog interface {
	// Resource returns the resource for an entity type
	Resource(entityType EntityType) (RemoteResource, error)

	// Ping verifies the endpoint and credentials
	Ping(ctx context.Context) error
}

// RemoteCatalogFactory builds catalogs from an organization's integration settings
type RemoteCatalogFactory interface {
	ForIntegration(ctx context.Context, integration *RemoteIntegration) (RemoteCatalog, error)
}
