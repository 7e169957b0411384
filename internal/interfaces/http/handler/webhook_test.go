package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/interfaces/http/dto"
)

type webhookFixture struct {
	verifier *MockIntegrationAPI
	syncer   *MockSyncService
	dedupe   *MockIdempotencyStore
	router   *gin.Engine
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		verifier: new(MockIntegrationAPI),
		syncer:   new(MockSyncService),
		dedupe:   new(MockIdempotencyStore),
	}
	h := NewWebhookHandler(f.verifier, f.syncer, f.dedupe, time.Hour)
	f.router = gin.New()
	f.router.POST("/api/v1/webhooks/:organization_id/:entity_type", h.Receive)
	return f
}

func (f *webhookFixture) deliver(path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func webhookPath(et string) string {
	return "/api/v1/webhooks/" + testOrgID.String() + "/" + et
}

func TestWebhookHandler_TriggersTargetedSync(t *testing.T) {
	f := newWebhookFixture()
	body := `{"id":512,"name":"Silver ring","date_modified_gmt":"2026-05-02T10:00:00"}`
	run := catalogsync.NewSyncRun(testOrgID, integration.EntityTypeProducts, catalogsync.RunKindTargeted, time.Now())
	run.Phase = catalogsync.RunPhaseCompleted

	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, []byte(body), "sig==").Return(nil)
	f.dedupe.On("MarkProcessed", mock.Anything, "webhook:"+testOrgID.String()+":d-1", time.Hour).Return(true, nil)
	f.syncer.On("SyncSpecific", mock.Anything, testOrgID, integration.EntityTypeProducts, []int64{512}).Return(run, nil)

	w := f.deliver(webhookPath("products"), body, map[string]string{
		integration.WebhookSignatureHeader:  "sig==",
		integration.WebhookDeliveryIDHeader: "d-1",
		integration.WebhookTopicHeader:      "product.updated",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, decodeResponse(t, w))
	assert.Equal(t, "updated", data["action"])
	assert.Equal(t, float64(512), data["id"])
	assert.Equal(t, "completed", data["run"].(map[string]any)["phase"])
	f.verifier.AssertExpectations(t)
	f.syncer.AssertExpectations(t)
}

func TestWebhookHandler_BadSignature(t *testing.T) {
	f := newWebhookFixture()
	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, mock.Anything, "forged").
		Return(integration.ErrInvalidWebhookSignature)

	w := f.deliver(webhookPath("orders"), `{"id":1}`, map[string]string{
		integration.WebhookSignatureHeader: "forged",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidSignature, decodeResponse(t, w).Error.Code)
	f.syncer.AssertNotCalled(t, "SyncSpecific", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_DuplicateDelivery(t *testing.T) {
	f := newWebhookFixture()
	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, mock.Anything, mock.Anything).Return(nil)
	f.dedupe.On("MarkProcessed", mock.Anything, mock.Anything, time.Hour).Return(false, nil)

	w := f.deliver(webhookPath("orders"), `{"id":77}`, map[string]string{
		integration.WebhookDeliveryIDHeader: "d-2",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, decodeResponse(t, w))["duplicate"])
	f.syncer.AssertNotCalled(t, "SyncSpecific", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_DedupeFailureStillSyncs(t *testing.T) {
	f := newWebhookFixture()
	run := catalogsync.NewSyncRun(testOrgID, integration.EntityTypeOrders, catalogsync.RunKindTargeted, time.Now())
	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, mock.Anything, mock.Anything).Return(nil)
	f.dedupe.On("MarkProcessed", mock.Anything, mock.Anything, time.Hour).Return(false, errors.New("redis down"))
	f.syncer.On("SyncSpecific", mock.Anything, testOrgID, integration.EntityTypeOrders, []int64{77}).Return(run, nil)

	w := f.deliver(webhookPath("orders"), `{"id":77}`, map[string]string{
		integration.WebhookDeliveryIDHeader: "d-3",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	f.syncer.AssertExpectations(t)
}

func TestWebhookHandler_PingIgnored(t *testing.T) {
	f := newWebhookFixture()
	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, mock.Anything, mock.Anything).Return(nil)

	w := f.deliver(webhookPath("products"), `{"webhook_id":3}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, decodeResponse(t, w))["ignored"])
}

func TestWebhookHandler_TopicMismatch(t *testing.T) {
	f := newWebhookFixture()
	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, mock.Anything, mock.Anything).Return(nil)

	w := f.deliver(webhookPath("products"), `{"id":5}`, map[string]string{
		integration.WebhookTopicHeader: "order.created",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler_RemoteDeleteReportedOnly(t *testing.T) {
	f := newWebhookFixture()
	f.verifier.On("VerifyWebhook", mock.Anything, testOrgID, mock.Anything, mock.Anything).Return(nil)

	w := f.deliver(webhookPath("customers"), `{"id":8}`, map[string]string{
		integration.WebhookTopicHeader: "customer.deleted",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted", dataMap(t, decodeResponse(t, w))["action"])
	f.syncer.AssertNotCalled(t, "SyncSpecific", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookHandler_BadPath(t *testing.T) {
	f := newWebhookFixture()

	w := f.deliver("/api/v1/webhooks/not-a-uuid/products", `{"id":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.deliver("/api/v1/webhooks/"+uuid.NewString()+"/coupons", `{"id":1}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.verifier.AssertNotCalled(t, "VerifyWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
