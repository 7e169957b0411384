package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/scheduler"
	"github.com/vitrine/backend/internal/interfaces/http/dto"
	"github.com/vitrine/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testOrgID = uuid.MustParse("9b2f7c4e-1d3a-4b8e-9f21-6c5d4e3b2a10")

// newOrgRouter builds a router whose routes are scoped by the X-Organization-ID header
func newOrgRouter(register func(r gin.IRouter)) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	api.Use(middleware.OrganizationAuth(middleware.OrganizationAuthConfig{}))
	register(api)
	return r
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.HeaderOrganizationID, testOrgID.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func dataMap(t *testing.T, resp dto.Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name:       "from context",
			setup:      func(c *gin.Context) { c.Set("request_id", "ctx-request-id") },
			expectedID: "ctx-request-id",
		},
		{
			name:       "from header when context empty",
			setup:      func(c *gin.Context) { c.Request.Header.Set(middleware.HeaderRequestID, "header-request-id") },
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.SuccessWithMeta(c, []string{"a", "b"}, 45, 2, 20)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(45), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}

func TestBaseHandlerNoContent(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.DELETE("/test", func(c *gin.Context) { h.NoContent(c) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/test", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestHandleError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{catalogsync.ErrSyncInProgress, http.StatusConflict, dto.ErrCodeSyncInProgress},
		{fmt.Errorf("find: %w", catalogsync.ErrMirrorEntityNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{catalogsync.ErrQueueItemNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{catalogsync.ErrInvalidQueueTransition, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{catalogsync.ErrNoIDs, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{integration.ErrUnknownEntityType, http.StatusNotFound, dto.ErrCodeUnknownEntity},
		{integration.ErrIntegrationNotFound, http.StatusPreconditionFailed, dto.ErrCodeNotConfigured},
		{integration.ErrIntegrationDisabled, http.StatusPreconditionFailed, dto.ErrCodeIntegrationDisabled},
		{integration.ErrInvalidWebhookSignature, http.StatusUnauthorized, dto.ErrCodeInvalidSignature},
		{integration.ErrRemoteUnavailable, http.StatusBadGateway, dto.ErrCodeRemoteUnavailable},
		{scheduler.ErrJobQueueFull, http.StatusServiceUnavailable, dto.ErrCodeSchedulerBusy},
		{errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "disk on fire")
		})
	}
}

func TestHandleError_RemoteMessageAppended(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	err := &integration.RemoteError{StatusCode: http.StatusBadRequest, Message: "Invalid SKU"}
	(&BaseHandler{}).HandleError(c, err)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRemoteRejected, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Invalid SKU")
}

func TestReadBody_TooLarge(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.Use(middleware.BodyLimit(8))
	router.POST("/echo", func(c *gin.Context) {
		if body, ok := h.readBody(c); ok {
			c.String(http.StatusOK, string(body))
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeResponse(t, w).Error.Code)
}

func TestOrganizationID_MissingIsUnauthorized(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := h.organizationID(c)

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
