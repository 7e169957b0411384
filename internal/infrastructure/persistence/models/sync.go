package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
)

// SyncStatusModel is the bookkeeping row of one (organization, entity type) pair
type SyncStatusModel struct {
	OrganizationID uuid.UUID              `gorm:"type:uuid;primaryKey"`
	EntityType     integration.EntityType `gorm:"type:varchar(20);primaryKey"`
	IsSyncing      bool                   `gorm:"not null;default:false"`
	StartedAt      *time.Time
	LastSyncTime   *time.Time
	LastError      string         `gorm:"type:text"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncStatusModel) TableName() string {
	return "sync_status"
}

// ToDomain converts the row to a domain SyncStatus.
// Undecodable metadata is dropped rather than failing the read.
func (m *SyncStatusModel) ToDomain() *catalogsync.SyncStatus {
	s := &catalogsync.SyncStatus{
		OrganizationID: m.OrganizationID,
		EntityType:     m.EntityType,
		IsSyncing:      m.IsSyncing,
		StartedAt:      utcPtr(m.StartedAt),
		LastSyncTime:   utcPtr(m.LastSyncTime),
		LastError:      m.LastError,
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
		var result catalogsync.DiscoveryResult
		if err := json.Unmarshal(m.Metadata, &result); err == nil {
			s.Metadata = &result
		}
	}
	return s
}

// SyncQueueModel is one row of the push queue
type SyncQueueModel struct {
	ID             uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID                  `gorm:"type:uuid;not null;index:idx_sync_queue_due,priority:1"`
	EntityType     integration.EntityType     `gorm:"type:varchar(20);not null;index:idx_sync_queue_entity,priority:1"`
	EntityID       int64                      `gorm:"not null;index:idx_sync_queue_entity,priority:2"`
	Operation      catalogsync.QueueOperation `gorm:"type:varchar(10);not null"`
	Data           datatypes.JSON             `gorm:"type:jsonb"`
	Status         catalogsync.QueueStatus    `gorm:"type:varchar(20);not null;default:'pending';index:idx_sync_queue_due,priority:2"`
	Attempts       int                        `gorm:"not null;default:0"`
	MaxAttempts    int                        `gorm:"not null;default:3"`
	Priority       int                        `gorm:"not null;default:0"`
	ScheduledAt    time.Time                  `gorm:"not null;index:idx_sync_queue_due,priority:3"`
	LastError      string                     `gorm:"type:text"`
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncQueueModel) TableName() string {
	return "sync_queue"
}

// ToDomain converts the row to a domain queue item
func (m *SyncQueueModel) ToDomain() *catalogsync.SyncQueueItem {
	return &catalogsync.SyncQueueItem{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		Operation:      m.Operation,
		Data:           json.RawMessage(m.Data),
		Status:         m.Status,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		Priority:       m.Priority,
		ScheduledAt:    m.ScheduledAt.UTC(),
		LastError:      m.LastError,
		CompletedAt:    utcPtr(m.CompletedAt),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

// FromDomain populates the row from a domain queue item
func (m *SyncQueueModel) FromDomain(q *catalogsync.SyncQueueItem) {
	m.ID = q.ID
	m.OrganizationID = q.OrganizationID
	m.EntityType = q.EntityType
	m.EntityID = q.EntityID
	m.Operation = q.Operation
	m.Data = datatypes.JSON(q.Data)
	m.Status = q.Status
	m.Attempts = q.Attempts
	m.MaxAttempts = q.MaxAttempts
	m.Priority = q.Priority
	m.ScheduledAt = q.ScheduledAt
	m.LastError = q.LastError
	m.CompletedAt = q.CompletedAt
	m.CreatedAt = q.CreatedAt
	m.UpdatedAt = q.UpdatedAt
}
