package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/interfaces/http/dto"
)

func newMirrorRouter(api *MockMirrorAPI) *gin.Engine {
	h := NewMirrorHandler(api)
	return newOrgRouter(func(r gin.IRouter) {
		r.GET("/mirror/:entity_type", h.List)
		r.POST("/mirror/:entity_type", h.Create)
		r.GET("/mirror/:entity_type/:id", h.Get)
		r.PUT("/mirror/:entity_type/:id", h.Update)
		r.DELETE("/mirror/:entity_type/:id", h.Delete)
	})
}

func newRemoteProduct(id int64, payload string) *catalogsync.MirrorEntity {
	return catalogsync.NewMirrorEntityFromRemote(testOrgID, integration.EntityTypeProducts, integration.RemoteRecord{
		ID:           id,
		LastModified: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:      json.RawMessage(payload),
	}, time.Now())
}

func TestMirrorHandler_List(t *testing.T) {
	api := new(MockMirrorAPI)
	dirty := true
	entity := newRemoteProduct(9, `{"id":9,"name":"Ring","sku":"R-9"}`)
	api.On("List", mock.Anything, testOrgID, integration.EntityTypeProducts, catalogsync.MirrorFilter{
		Search: "ring", Dirty: &dirty, Page: 1, PageSize: 50,
	}).Return(&appsync.MirrorListResult{
		Items:    []appsync.MirrorEntityDTO{appsync.ToMirrorEntityDTO(entity)},
		Total:    1,
		Page:     1,
		PageSize: 50,
	}, nil)

	w := doRequest(newMirrorRouter(api), http.MethodGet, "/api/v1/mirror/products?search=ring&dirty=true&page=1&page_size=50", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	items := resp.Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "R-9", items[0].(map[string]any)["sku"])
	assert.Equal(t, int64(1), resp.Meta.Total)
	api.AssertExpectations(t)
}

func TestMirrorHandler_Get(t *testing.T) {
	api := new(MockMirrorAPI)
	entity := newRemoteProduct(9, `{"id":9,"name":"Ring"}`)
	api.On("Get", mock.Anything, testOrgID, integration.EntityTypeProducts, int64(9)).Return(entity, nil)
	api.On("Get", mock.Anything, testOrgID, integration.EntityTypeProducts, int64(10)).Return(nil, catalogsync.ErrMirrorEntityNotFound)

	router := newMirrorRouter(api)

	w := doRequest(router, http.MethodGet, "/api/v1/mirror/products/9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decodeResponse(t, w))
	assert.Equal(t, float64(9), data["remote_id"])
	assert.Equal(t, false, data["dirty"])

	w = doRequest(router, http.MethodGet, "/api/v1/mirror/products/10", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/mirror/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMirrorHandler_Create(t *testing.T) {
	api := new(MockMirrorAPI)
	payload := json.RawMessage(`{"name":"Necklace","regular_price":"120.00"}`)
	entity, err := catalogsync.NewLocalEntity(testOrgID, integration.EntityTypeProducts, -1, payload, time.Now())
	require.NoError(t, err)
	item, err := catalogsync.NewSyncQueueItem(testOrgID, integration.EntityTypeProducts, -1,
		catalogsync.QueueOperationCreate, payload, 3, time.Now())
	require.NoError(t, err)
	api.On("CreateLocal", mock.Anything, testOrgID, integration.EntityTypeProducts, payload).
		Return(&appsync.LocalChange{Entity: entity, Item: item}, nil)

	w := doRequest(newMirrorRouter(api), http.MethodPost, "/api/v1/mirror/products", []byte(payload))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := dataMap(t, decodeResponse(t, w))
	created := data["entity"].(map[string]any)
	assert.Equal(t, float64(-1), created["remote_id"])
	assert.Equal(t, true, created["provisional"])
	queued := data["queue_item"].(map[string]any)
	assert.Equal(t, "create", queued["operation"])
}

func TestMirrorHandler_Create_RejectsNonObject(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"array", `[1,2]`, dto.ErrCodeBadRequest},
		{"scalar", `"ring"`, dto.ErrCodeBadRequest},
		{"broken", `{"name":`, dto.ErrCodeInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockMirrorAPI)

			w := doRequest(newMirrorRouter(api), http.MethodPost, "/api/v1/mirror/customers", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeResponse(t, w).Error.Code)
			api.AssertNotCalled(t, "CreateLocal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestMirrorHandler_Update(t *testing.T) {
	api := new(MockMirrorAPI)
	patch := json.RawMessage(`{"regular_price":"99.00"}`)
	entity := newRemoteProduct(9, `{"id":9,"regular_price":"99.00"}`)
	api.On("UpdateLocal", mock.Anything, testOrgID, integration.EntityTypeProducts, int64(9), patch).
		Return(&appsync.LocalChange{Entity: entity}, nil)

	w := doRequest(newMirrorRouter(api), http.MethodPut, "/api/v1/mirror/products/9", []byte(patch))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, decodeResponse(t, w))
	assert.Contains(t, data, "entity")
	assert.NotContains(t, data, "queue_item")
}

func TestMirrorHandler_Update_PendingDelete(t *testing.T) {
	api := new(MockMirrorAPI)
	patch := json.RawMessage(`{"status":"draft"}`)
	api.On("UpdateLocal", mock.Anything, testOrgID, integration.EntityTypeOrders, int64(31), patch).
		Return(nil, catalogsync.ErrEntityPendingDelete)

	w := doRequest(newMirrorRouter(api), http.MethodPut, "/api/v1/mirror/orders/31", []byte(patch))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMirrorHandler_Delete_Provisional(t *testing.T) {
	api := new(MockMirrorAPI)
	api.On("DeleteLocal", mock.Anything, testOrgID, integration.EntityTypeProducts, int64(-4)).
		Return(&appsync.LocalChange{}, nil)

	w := doRequest(newMirrorRouter(api), http.MethodDelete, "/api/v1/mirror/products/-4", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	api.AssertExpectations(t)
}
