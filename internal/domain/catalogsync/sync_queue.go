package catalogsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/integration"
)

// QueueOperation is the remote operation a queue item performs
type QueueOperation string

const (
	QueueOperationCreate QueueOperation = "create"
	QueueOperationUpdate QueueOperation = "update"
	QueueOperationDelete QueueOperation = "delete"
)

// IsValid returns true if the operation is supported
func (o QueueOperation) IsValid() bool {
	switch o {
	case QueueOperationCreate, QueueOperationUpdate, QueueOperationDelete:
		return true
	default:
		return false
	}
}

// String returns the string representation of QueueOperation
func (o QueueOperation) String() string {
	return string(o)
}

// QueueStatus is the lifecycle state of a queue item
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// IsValid returns true if the status is known
func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that are never left without operator action
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// String returns the string representation of QueueStatus
func (s QueueStatus) String() string {
	return string(s)
}

// Queue defaults
const (
	DefaultMaxAttempts = 3

	// Deletes are pushed first, then creates so provisional ids resolve before their updates
	PriorityDelete  = 10
	PriorityCreate  = 5
	PriorityDefault = 0

	maxBackoffExponent = 16
)

// PriorityFor returns the default priority of an operation
func PriorityFor(op QueueOperation) int {
	switch op {
	case QueueOperationDelete:
		return PriorityDelete
	case QueueOperationCreate:
		return PriorityCreate
	default:
		return PriorityDefault
	}
}

// BackoffDelay returns the wait before the next attempt after `attempts` attempts: 2^attempts minutes
func BackoffDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffExponent {
		attempts = maxBackoffExponent
	}
	return time.Duration(1<<uint(attempts)) * time.Minute
}

// SyncQueueItem is one local to remote operation waiting to be pushed
type SyncQueueItem struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	EntityType     integration.EntityType
	// EntityID is the remote id, negative while the entity is provisional
	EntityID  int64
	Operation QueueOperation
	// Data is the payload snapshot taken when the item was enqueued
	Data        json.RawMessage
	Status      QueueStatus
	Attempts    int
	MaxAttempts int
	Priority    int
	ScheduledAt time.Time
	LastError   string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSyncQueueItem creates a pending item due immediately
func NewSyncQueueItem(
	orgID uuid.UUID,
	entityType integration.EntityType,
	entityID int64,
	op QueueOperation,
	data json.RawMessage,
	maxAttempts int,
	now time.Time,
) (*SyncQueueItem, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrganization
	}
	if !entityType.IsValid() {
		return nil, integration.ErrUnknownEntityType
	}
	if !op.IsValid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidQueueItem, op)
	}
	if entityID == 0 {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidQueueItem)
	}
	if op != QueueOperationDelete && !IsJSONObject(data) {
		return nil, fmt.Errorf("%w: %s requires a JSON object payload", ErrInvalidQueueItem, op)
	}
	if op == QueueOperationCreate && entityID > 0 {
		return nil, fmt.Errorf("%w: create requires a provisional entity id", ErrInvalidQueueItem)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now = now.UTC()
	return &SyncQueueItem{
		ID:             uuid.New(),
		OrganizationID: orgID,
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      op,
		Data:           data,
		Status:         QueueStatusPending,
		MaxAttempts:    maxAttempts,
		Priority:       PriorityFor(op),
		ScheduledAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsDue returns true if the item is pending and its scheduled time has passed
func (q *SyncQueueItem) IsDue(now time.Time) bool {
	return q.Status == QueueStatusPending && !q.ScheduledAt.After(now)
}

// MarkProcessing starts an attempt
func (q *SyncQueueItem) MarkProcessing(now time.Time) error {
	if q.Status != QueueStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidQueueTransition, q.Status, QueueStatusProcessing)
	}
	q.Status = QueueStatusProcessing
	q.Attempts++
	q.UpdatedAt = now.UTC()
	return nil
}

// MarkCompleted records a successful push
func (q *SyncQueueItem) MarkCompleted(now time.Time) error {
	if q.Status != QueueStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidQueueTransition, q.Status, QueueStatusCompleted)
	}
	now = now.UTC()
	q.Status = QueueStatusCompleted
	q.LastError = ""
	q.CompletedAt = &now
	q.UpdatedAt = now
	return nil
}

// MarkFailed records a failed attempt. The item goes back to pending with
// scheduled_at = now + 2^attempts minutes while attempts < max_attempts,
// and becomes terminally failed otherwise.
func (q *SyncQueueItem) MarkFailed(errMsg string, now time.Time) error {
	if q.Status != QueueStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidQueueTransition, q.Status, QueueStatusFailed)
	}
	now = now.UTC()
	q.LastError = errMsg
	q.UpdatedAt = now
	if q.Attempts < q.MaxAttempts {
		q.Status = QueueStatusPending
		q.ScheduledAt = now.Add(BackoffDelay(q.Attempts))
		return nil
	}
	q.Status = QueueStatusFailed
	return nil
}

// MarkFailedPermanently fails the item regardless of remaining attempts
func (q *SyncQueueItem) MarkFailedPermanently(errMsg string, now time.Time) error {
	if q.Status != QueueStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidQueueTransition, q.Status, QueueStatusFailed)
	}
	q.Status = QueueStatusFailed
	q.LastError = errMsg
	q.UpdatedAt = now.UTC()
	return nil
}

// Requeue resets a failed item for another round of attempts
func (q *SyncQueueItem) Requeue(now time.Time) error {
	if q.Status != QueueStatusFailed {
		return fmt.Errorf("%w: only failed items can be requeued, item is %s", ErrInvalidQueueTransition, q.Status)
	}
	q.reset(now)
	return nil
}

// RequeueAbandoned resets an item whose processing lease expired, like Requeue
func (q *SyncQueueItem) RequeueAbandoned(now time.Time, lease time.Duration) error {
	if !q.LeaseExpired(now, lease) {
		return fmt.Errorf("%w: item is %s and its lease has not expired", ErrInvalidQueueTransition, q.Status)
	}
	q.reset(now)
	return nil
}

func (q *SyncQueueItem) reset(now time.Time) {
	now = now.UTC()
	q.Status = QueueStatusPending
	q.Attempts = 0
	q.ScheduledAt = now
	q.UpdatedAt = now
}

// LeaseExpiredError is recorded on items taken back from an abandoned attempt
const LeaseExpiredError = "processing lease expired"

// LeaseExpired returns true if the item has been processing for longer than lease
func (q *SyncQueueItem) LeaseExpired(now time.Time, lease time.Duration) bool {
	return q.Status == QueueStatusProcessing && q.UpdatedAt.Add(lease).Before(now)
}

// RemainingAttempts returns how many attempts are left
func (q *SyncQueueItem) RemainingAttempts() int {
	if n := q.MaxAttempts - q.Attempts; n > 0 {
		return n
	}
	return 0
}

// QueuedRef is the discovery view of an active (pending or processing) queue item
type QueuedRef struct {
	EntityID  int64
	Operation QueueOperation
}
