package catalogsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/backend/internal/domain/integration"
)

func TestNewMirrorEntityFromRemote(t *testing.T) {
	orgID := uuid.New()
	rec := integration.RemoteRecord{
		ID:           17,
		LastModified: t0,
		Payload:      json.RawMessage(`{"id":17,"name":"Mug","sku":"MUG-1","type":"simple","price":"12.50","stock_quantity":4}`),
	}

	e := NewMirrorEntityFromRemote(orgID, integration.EntityTypeProducts, rec, t0.Add(time.Second))

	assert.Equal(t, int64(17), e.RemoteID)
	assert.Equal(t, t0, e.LastModified)
	require.NotNil(t, e.SyncedAt)
	assert.False(t, e.IsDirty())
	assert.False(t, e.IsProvisional())
	assert.Equal(t, "Mug", e.Summary.Name)
	assert.Equal(t, "MUG-1", e.Summary.SKU)
	assert.True(t, decimal.RequireFromString("12.5").Equal(e.Summary.Amount))
	require.NotNil(t, e.Summary.StockQuantity)
	assert.Equal(t, 4, *e.Summary.StockQuantity)
}

func TestMirrorEntity_LocalChangeMarksDirty(t *testing.T) {
	rec := integration.RemoteRecord{ID: 3, LastModified: t0, Payload: json.RawMessage(`{"status":"processing","total":"20.00","currency":"EUR"}`)}
	e := NewMirrorEntityFromRemote(uuid.New(), integration.EntityTypeOrders, rec, t0)

	require.NoError(t, e.ApplyLocalChange(json.RawMessage(`{"status":"completed"}`), t0.Add(time.Minute)))

	assert.True(t, e.IsDirty())
	assert.Equal(t, "completed", e.Summary.Status)
	assert.Equal(t, "EUR", e.Summary.Currency)
	assert.JSONEq(t, `{"status":"completed","total":"20.00","currency":"EUR"}`, string(e.Payload))

	e.ApplyRemote(integration.RemoteRecord{ID: 3, LastModified: t0.Add(2 * time.Minute), Payload: e.Payload}, t0.Add(2*time.Minute))
	assert.False(t, e.IsDirty())

	assert.ErrorIs(t, e.ApplyLocalChange(json.RawMessage(`"x"`), t0), ErrInvalidPayload)
}

func TestNewLocalEntity(t *testing.T) {
	orgID := uuid.New()

	e, err := NewLocalEntity(orgID, integration.EntityTypeCustomers, -1, json.RawMessage(`{"email":"a@b.c","first_name":"Ada","last_name":"L"}`), t0)
	require.NoError(t, err)
	assert.True(t, e.IsProvisional())
	assert.True(t, e.IsDirty())
	assert.Equal(t, "Ada L", e.Summary.Name)
	assert.Equal(t, "a@b.c", e.Summary.Email)

	_, err = NewLocalEntity(orgID, integration.EntityTypeCustomers, 5, json.RawMessage(`{}`), t0)
	assert.Error(t, err)
	_, err = NewLocalEntity(orgID, integration.EntityTypeCustomers, -1, json.RawMessage(`null`), t0)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = NewLocalEntity(uuid.Nil, integration.EntityTypeCustomers, -1, json.RawMessage(`{}`), t0)
	assert.ErrorIs(t, err, ErrInvalidOrganization)
}

func TestMirrorEntity_MarkDeletedLocally(t *testing.T) {
	e := NewMirrorEntityFromRemote(uuid.New(), integration.EntityTypeProducts,
		integration.RemoteRecord{ID: 9, LastModified: t0, Payload: json.RawMessage(`{}`)}, t0)
	e.MarkDeletedLocally(t0.Add(time.Minute))

	idx := e.IndexEntry()
	assert.True(t, idx.PendingDelete)
	assert.True(t, idx.Dirty)
	assert.Equal(t, int64(9), idx.RemoteID)
}

func TestExtractSummary_Malformed(t *testing.T) {
	s := ExtractSummary(integration.EntityTypeProducts, json.RawMessage(`{"price":"abc"}`))
	assert.True(t, s.Amount.IsZero())
	assert.Equal(t, MirrorSummary{}, ExtractSummary(integration.EntityTypeProducts, json.RawMessage(`not json`)))
	assert.True(t, ExtractSummary(integration.EntityTypeOrders, json.RawMessage(`{"total":19.99}`)).Amount.Equal(decimal.RequireFromString("19.99")))
}
