package catalogsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/integration"
)

// MirrorFilter narrows mirror listings
type MirrorFilter struct {
	Search   string
	Status   string
	Dirty    *bool
	Page     int
	PageSize int
}

// MirrorRepository persists mirrored entities, one table per entity type
type MirrorRepository interface {
	// FindByRemoteID returns ErrMirrorEntityNotFound when the row does not exist
	FindByRemoteID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) (*MirrorEntity, error)
	// List returns a page of rows and the total count
	List(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, filter MirrorFilter) ([]*MirrorEntity, int64, error)
	// LocalIndex returns the discovery view of every row
	LocalIndex(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) ([]LocalIndexEntry, error)
	// Upsert writes pulled rows. Existing rows keep their local change markers.
	Upsert(ctx context.Context, entities ...*MirrorEntity) error
	// Save writes every column of one row, inserting it when missing
	Save(ctx context.Context, entity *MirrorEntity) error
	// ReassignRemoteID replaces a provisional id with the id assigned by the remote
	ReassignRemoteID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, fromID, toID int64) error
	// Delete removes a row
	Delete(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) error
	// NextProvisionalID returns a negative id unused in the organization's table
	NextProvisionalID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (int64, error)
}

// SyncStatusRepository persists sync bookkeeping and implements the run guard
type SyncStatusRepository interface {
	// Get returns ErrSyncStatusNotFound if the pair never synced
	Get(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*SyncStatus, error)
	// ListByOrganization returns every status row of an organization
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*SyncStatus, error)
	// TryBeginSync atomically sets is_syncing when it is clear, or when it was
	// taken before staleBefore. Returns false if another run holds the guard.
	TryBeginSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, now, staleBefore time.Time) (bool, error)
	// FinishSync clears is_syncing and records the outcome
	FinishSync(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, outcome SyncOutcome) error
	// SaveDiscovery stores the latest discovery result as metadata
	SaveDiscovery(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, result *DiscoveryResult) error
}

// DueFilter selects due queue items
type DueFilter struct {
	EntityType *integration.EntityType
	Now        time.Time
	Limit      int
}

// SyncQueueRepository persists the push queue
type SyncQueueRepository interface {
	// Enqueue inserts new items
	Enqueue(ctx context.Context, items ...*SyncQueueItem) error
	// FindByID returns ErrQueueItemNotFound when missing
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*SyncQueueItem, error)
	// FindDue returns pending items with scheduled_at <= now ordered by priority desc, created_at asc
	FindDue(ctx context.Context, orgID uuid.UUID, filter DueFilter) ([]*SyncQueueItem, error)
	// Claim persists the item's processing transition only if the row is still pending.
	// Returns false when another worker claimed it first.
	Claim(ctx context.Context, item *SyncQueueItem) (bool, error)
	// Update persists the item's current state
	Update(ctx context.Context, item *SyncQueueItem) error
	// FindActive returns pending and processing items of an entity type
	FindActive(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) ([]QueuedRef, error)
	// FindByStatus returns a page of items, all statuses when status is nil
	FindByStatus(ctx context.Context, orgID uuid.UUID, status *QueueStatus, page, pageSize int) ([]*SyncQueueItem, int64, error)
	// CountByStatus returns item counts per status
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[QueueStatus]int64, error)
	// ReassignEntityID rewrites the entity id of items that are not completed
	ReassignEntityID(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, fromID, toID int64) (int64, error)
	// CancelPending deletes pending items of one entity
	CancelPending(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, entityID int64) (int64, error)
	// Delete removes an item
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	// OrganizationsWithDue lists organizations that have due items
	OrganizationsWithDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// DeleteCompletedBefore removes completed items finished before the given time
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
	// ReleaseExpiredLeases ends abandoned attempts of processing items last updated
	// before leasedBefore, of one organization or of all when orgID is nil. The
	// attempt stays counted: items with attempts left are due again at now, the
	// rest fail. Both record LeaseExpiredError.
	ReleaseExpiredLeases(ctx context.Context, orgID *uuid.UUID, leasedBefore, now time.Time) (int64, error)
}

// RunStore keeps SyncRun snapshots keyed by run id and by (organization, entity type)
type RunStore interface {
	Save(ctx context.Context, run *SyncRun) error
	// Get returns ErrRunNotFound when the run is unknown or expired
	Get(ctx context.Context, runID uuid.UUID) (*SyncRun, error)
	// Latest returns the most recent run of a pair, ErrRunNotFound if none
	Latest(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType) (*SyncRun, error)
	// ListByOrganization returns the latest run of every entity type of the organization
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*SyncRun, error)
}

// IdempotencyStore remembers processed keys, such as webhook delivery ids
type IdempotencyStore interface {
	// MarkProcessed returns true if the key was not seen within ttl
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
