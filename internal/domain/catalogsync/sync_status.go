package catalogsync

import (
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/integration"
)

// SyncStatus is the bookkeeping row for one (organization, entity type) pair
type SyncStatus struct {
	OrganizationID uuid.UUID
	EntityType     integration.EntityType
	// IsSyncing is the run guard; set and cleared through conditional updates
	IsSyncing bool
	// StartedAt is when the current or last run acquired the guard
	StartedAt *time.Time
	// LastSyncTime is when a run last completed successfully
	LastSyncTime *time.Time
	LastError    string
	// Metadata is the last discovery result
	Metadata  *DiscoveryResult
	UpdatedAt time.Time
}

// NewSyncStatus returns an idle status for a pair that has never synced
func NewSyncStatus(orgID uuid.UUID, entityType integration.EntityType) *SyncStatus {
	return &SyncStatus{
		OrganizationID: orgID,
		EntityType:     entityType,
	}
}

// IsStale returns true if the guard has been held longer than staleAfter,
// which means the run that took it most likely died without releasing it.
func (s *SyncStatus) IsStale(now time.Time, staleAfter time.Duration) bool {
	if !s.IsSyncing || s.StartedAt == nil || staleAfter <= 0 {
		return false
	}
	return now.Sub(*s.StartedAt) > staleAfter
}

// SyncOutcome describes how a run released the guard
type SyncOutcome struct {
	Succeeded  bool
	Error      string
	FinishedAt time.Time
}
