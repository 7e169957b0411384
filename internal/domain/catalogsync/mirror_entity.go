package catalogsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vitrine/backend/internal/domain/integration"
)

// MirrorEntity is the local copy of one remote entity.
// Its identity is (OrganizationID, EntityType, RemoteID). A negative RemoteID is
// provisional: the entity was created locally and has not reached the remote yet.
type MirrorEntity struct {
	OrganizationID uuid.UUID
	EntityType     integration.EntityType
	RemoteID       int64
	// Payload is the full remote document as last pulled or locally edited
	Payload json.RawMessage
	// LastModified is the remote modification time of the mirrored version
	LastModified time.Time
	// SyncedAt is when the row last matched the remote
	SyncedAt *time.Time
	// LocalModifiedAt is set by local mutations; the row is dirty while it is after SyncedAt
	LocalModifiedAt *time.Time
	// DeletedLocallyAt marks a local delete waiting for remote confirmation
	DeletedLocallyAt *time.Time
	Summary          MirrorSummary
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MirrorSummary holds columns extracted from the payload for listing and filtering
type MirrorSummary struct {
	Name          string
	SKU           string
	Kind          string
	Status        string
	Email         string
	Amount        decimal.Decimal
	Currency      string
	StockQuantity *int
	ParentID      int64
}

// NewLocalEntity creates a mirror row for an entity that exists only locally so far
func NewLocalEntity(orgID uuid.UUID, entityType integration.EntityType, provisionalID int64, payload json.RawMessage, now time.Time) (*MirrorEntity, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrganization
	}
	if !entityType.IsValid() {
		return nil, integration.ErrUnknownEntityType
	}
	if provisionalID >= 0 {
		return nil, fmt.Errorf("provisional id must be negative, got %d", provisionalID)
	}
	if !IsJSONObject(payload) {
		return nil, ErrInvalidPayload
	}
	now = now.UTC()
	e := &MirrorEntity{
		OrganizationID:  orgID,
		EntityType:      entityType,
		RemoteID:        provisionalID,
		Payload:         payload,
		LastModified:    now,
		LocalModifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.Summary = ExtractSummary(entityType, payload)
	return e, nil
}

// NewMirrorEntityFromRemote creates a mirror row from a pulled remote record
func NewMirrorEntityFromRemote(orgID uuid.UUID, entityType integration.EntityType, rec integration.RemoteRecord, now time.Time) *MirrorEntity {
	now = now.UTC()
	e := &MirrorEntity{
		OrganizationID: orgID,
		EntityType:     entityType,
		CreatedAt:      now,
	}
	e.ApplyRemote(rec, now)
	return e
}

// IsProvisional returns true if the entity has not been created remotely yet
func (e *MirrorEntity) IsProvisional() bool {
	return e.RemoteID < 0
}

// IsDirty returns true if the row was changed locally after it last matched the remote
func (e *MirrorEntity) IsDirty() bool {
	if e.LocalModifiedAt == nil {
		return false
	}
	return e.SyncedAt == nil || e.LocalModifiedAt.After(*e.SyncedAt)
}

// IsPendingDelete returns true if the row was deleted locally but not yet remotely
func (e *MirrorEntity) IsPendingDelete() bool {
	return e.DeletedLocallyAt != nil
}

// ApplyRemote overwrites the row with the remote version. Remote wins on pull.
func (e *MirrorEntity) ApplyRemote(rec integration.RemoteRecord, now time.Time) {
	now = now.UTC()
	e.RemoteID = rec.ID
	e.Payload = rec.Payload
	e.LastModified = rec.LastModified.UTC()
	e.SyncedAt = &now
	e.Summary = ExtractSummary(e.EntityType, rec.Payload)
	e.UpdatedAt = now
}

// ApplyLocalChange merges a partial document into the payload and marks the row dirty
func (e *MirrorEntity) ApplyLocalChange(patch json.RawMessage, now time.Time) error {
	merged, err := MergePayload(e.Payload, patch)
	if err != nil {
		return err
	}
	now = now.UTC()
	e.Payload = merged
	e.LocalModifiedAt = &now
	e.Summary = ExtractSummary(e.EntityType, merged)
	e.UpdatedAt = now
	return nil
}

// MarkDeletedLocally records a local delete that still needs remote confirmation
func (e *MirrorEntity) MarkDeletedLocally(now time.Time) {
	now = now.UTC()
	e.DeletedLocallyAt = &now
	e.LocalModifiedAt = &now
	e.UpdatedAt = now
}

// IndexEntry returns the row's discovery view
func (e *MirrorEntity) IndexEntry() LocalIndexEntry {
	return LocalIndexEntry{
		RemoteID:      e.RemoteID,
		LastModified:  e.LastModified,
		Dirty:         e.IsDirty(),
		PendingDelete: e.IsPendingDelete(),
	}
}

// IsJSONObject reports whether raw is a JSON object
func IsJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &obj) == nil && obj != nil
}

// MergePayload applies the top-level keys of patch over base
func MergePayload(base, patch json.RawMessage) (json.RawMessage, error) {
	if !IsJSONObject(patch) {
		return nil, ErrInvalidPayload
	}
	doc := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &doc); err != nil {
			return nil, fmt.Errorf("decode stored payload: %w", err)
		}
	}
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, ErrInvalidPayload
	}
	for k, v := range changes {
		doc[k] = v
	}
	return json.Marshal(doc)
}

// ---------------------------------------------------------------------------
// Summary extraction
// ---------------------------------------------------------------------------

type summaryDoc struct {
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Price         json.RawMessage `json:"price"`
	StockQuantity *int            `json:"stock_quantity"`
	ParentID      int64           `json:"parent_id"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Total         json.RawMessage `json:"total"`
	Currency      string          `json:"currency"`
	CustomerID    int64           `json:"customer_id"`
}

// ExtractSummary pulls listing columns out of a remote document.
// Unknown or malformed fields are left empty.
func ExtractSummary(entityType integration.EntityType, payload json.RawMessage) MirrorSummary {
	var doc summaryDoc
	if len(payload) == 0 || json.Unmarshal(payload, &doc) != nil {
		return MirrorSummary{}
	}
	switch entityType {
	case integration.EntityTypeProducts:
		return MirrorSummary{
			Name:          doc.Name,
			SKU:           doc.SKU,
			Kind:          doc.Type,
			Status:        doc.Status,
			Amount:        parseAmount(doc.Price),
			StockQuantity: doc.StockQuantity,
			ParentID:      doc.ParentID,
		}
	case integration.EntityTypeCustomers:
		return MirrorSummary{
			Name:  strings.TrimSpace(doc.FirstName + " " + doc.LastName),
			Email: doc.Email,
		}
	case integration.EntityTypeOrders:
		return MirrorSummary{
			Status:   doc.Status,
			Amount:   parseAmount(doc.Total),
			Currency: doc.Currency,
			ParentID: doc.CustomerID,
		}
	default:
		return MirrorSummary{}
	}
}

// parseAmount accepts both "12.50" and 12.5
func parseAmount(raw json.RawMessage) decimal.Decimal {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
