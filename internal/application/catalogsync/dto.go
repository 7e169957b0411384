package catalogsync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/catalogsync"
)

// ---------------------------------------------------------------------------
// Queue DTOs
// ---------------------------------------------------------------------------

// AddToQueueInput describes a local mutation that needs to reach the remote catalog
type AddToQueueInput struct {
	EntityType  string          `json:"entity_type" validate:"required,oneof=products customers orders"`
	EntityID    int64           `json:"entity_id" validate:"required"`
	Operation   string          `json:"operation" validate:"required,oneof=create update delete"`
	Data        json.RawMessage `json:"data,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=20"`
	Priority    *int            `json:"priority,omitempty" validate:"omitempty,min=0,max=100"`
}

// QueueItemDTO represents a queue item in API responses
type QueueItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	EntityType  string          `json:"entity_type"`
	EntityID    int64           `json:"entity_id"`
	Operation   string          `json:"operation"`
	Data        json.RawMessage `json:"data,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Remaining   int             `json:"remaining_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	LastError   string          `json:"last_error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// QueueStatusDTO holds item counts per status
type QueueStatusDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// QueueListResult represents a paginated queue listing
type QueueListResult struct {
	Items      []QueueItemDTO `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// ToQueueItemDTO converts a queue item to its API representation
func ToQueueItemDTO(item *catalogsync.SyncQueueItem) QueueItemDTO {
	return QueueItemDTO{
		ID:          item.ID,
		EntityType:  item.EntityType.String(),
		EntityID:    item.EntityID,
		Operation:   item.Operation.String(),
		Data:        item.Data,
		Status:      item.Status.String(),
		Attempts:    item.Attempts,
		MaxAttempts: item.MaxAttempts,
		Remaining:   item.RemainingAttempts(),
		Priority:    item.Priority,
		ScheduledAt: item.ScheduledAt,
		LastError:   item.LastError,
		CompletedAt: item.CompletedAt,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Mirror DTOs
// ---------------------------------------------------------------------------

// MirrorEntityDTO represents a mirrored entity in API responses
type MirrorEntityDTO struct {
	RemoteID         int64           `json:"remote_id"`
	EntityType       string          `json:"entity_type"`
	Payload          json.RawMessage `json:"payload"`
	Name             string          `json:"name,omitempty"`
	SKU              string          `json:"sku,omitempty"`
	Status           string          `json:"status,omitempty"`
	Email            string          `json:"email,omitempty"`
	Amount           string          `json:"amount,omitempty"`
	Currency         string          `json:"currency,omitempty"`
	Provisional      bool            `json:"provisional"`
	Dirty            bool            `json:"dirty"`
	PendingDelete    bool            `json:"pending_delete"`
	LastModified     time.Time       `json:"last_modified"`
	SyncedAt         *time.Time      `json:"synced_at,omitempty"`
	LocalModifiedAt  *time.Time      `json:"local_modified_at,omitempty"`
	DeletedLocallyAt *time.Time      `json:"deleted_locally_at,omitempty"`
}

// MirrorListResult represents a paginated mirror listing
type MirrorListResult struct {
	Items      []MirrorEntityDTO `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ToMirrorEntityDTO converts a mirror row to its API representation
func ToMirrorEntityDTO(e *catalogsync.MirrorEntity) MirrorEntityDTO {
	dto := MirrorEntityDTO{
		RemoteID:         e.RemoteID,
		EntityType:       e.EntityType.String(),
		Payload:          e.Payload,
		Name:             e.Summary.Name,
		SKU:              e.Summary.SKU,
		Status:           e.Summary.Status,
		Email:            e.Summary.Email,
		Currency:         e.Summary.Currency,
		Provisional:      e.IsProvisional(),
		Dirty:            e.IsDirty(),
		PendingDelete:    e.IsPendingDelete(),
		LastModified:     e.LastModified,
		SyncedAt:         e.SyncedAt,
		LocalModifiedAt:  e.LocalModifiedAt,
		DeletedLocallyAt: e.DeletedLocallyAt,
	}
	if !e.Summary.Amount.IsZero() {
		dto.Amount = e.Summary.Amount.StringFixed(2)
	}
	return dto
}

// ---------------------------------------------------------------------------
// Status DTOs
// ---------------------------------------------------------------------------

// SyncStatusDTO is the status report of one (organization, entity type) pair
type SyncStatusDTO struct {
	EntityType string `json:"entity_type"`
	IsSyncing  bool   `json:"is_syncing"`
	// Stale is set when the guard is held past sync.stale_after and the next run may take it over
	Stale         bool                         `json:"stale,omitempty"`
	StartedAt     *time.Time                   `json:"started_at,omitempty"`
	LastSyncTime  *time.Time                   `json:"last_sync_time,omitempty"`
	LastError     string                       `json:"last_error,omitempty"`
	LastDiscovery *catalogsync.DiscoveryResult `json:"last_discovery,omitempty"`
	CurrentRun    *SyncRunDTO                  `json:"current_run,omitempty"`
	Queue         *QueueStatusDTO              `json:"queue,omitempty"`
}

// SyncRunDTO represents a sync run in API responses
type SyncRunDTO struct {
	ID            uuid.UUID                    `json:"id"`
	EntityType    string                       `json:"entity_type"`
	Kind          string                       `json:"kind"`
	Phase         string                       `json:"phase"`
	Progress      int                          `json:"progress"`
	CurrentStep   string                       `json:"current_step"`
	FailureReason string                       `json:"failure_reason,omitempty"`
	Discovery     *catalogsync.DiscoveryResult `json:"discovery,omitempty"`
	Pull          *catalogsync.PullResult      `json:"pull,omitempty"`
	Push          *catalogsync.PushResult      `json:"push,omitempty"`
	StartedAt     time.Time                    `json:"started_at"`
	FinishedAt    *time.Time                   `json:"finished_at,omitempty"`
}

// ToSyncRunDTO converts a run to its API representation
func ToSyncRunDTO(run *catalogsync.SyncRun) *SyncRunDTO {
	if run == nil {
		return nil
	}
	return &SyncRunDTO{
		ID:            run.ID,
		EntityType:    run.EntityType.String(),
		Kind:          string(run.Kind),
		Phase:         run.Phase.String(),
		Progress:      run.Progress,
		CurrentStep:   run.CurrentStep,
		FailureReason: run.FailureReason,
		Discovery:     run.Discovery,
		Pull:          run.Pull,
		Push:          run.Push,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
