package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/infrastructure/scheduler"
	"github.com/vitrine/backend/internal/interfaces/http/dto"
	"github.com/vitrine/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// errorMapping maps sentinel errors to API error codes. Order matters: the
// first match wins, so the specific errors come before the broad ones.
var errorMapping = []struct {
	target  error
	code    string
	message string
}{
	{integration.ErrUnknownEntityType, dto.ErrCodeUnknownEntity, "Unknown entity type"},
	{integration.ErrInvalidWebhookSignature, dto.ErrCodeInvalidSignature, "Webhook signature does not match"},
	{integration.ErrIntegrationNotFound, dto.ErrCodeNotConfigured, "No remote integration is configured"},
	{integration.ErrIntegrationDisabled, dto.ErrCodeIntegrationDisabled, "Remote integration is disabled"},
	{integration.ErrConfiguration, dto.ErrCodeNotConfigured, "Remote integration is not usable"},
	{catalogsync.ErrSyncInProgress, dto.ErrCodeSyncInProgress, "A sync is already running for this entity type"},
	{catalogsync.ErrMirrorEntityNotFound, dto.ErrCodeNotFound, "Entity not found"},
	{catalogsync.ErrQueueItemNotFound, dto.ErrCodeNotFound, "Queue item not found"},
	{catalogsync.ErrRunNotFound, dto.ErrCodeNotFound, "Sync run not found"},
	{catalogsync.ErrSyncStatusNotFound, dto.ErrCodeNotFound, "Entity type has never been synced"},
	{catalogsync.ErrInvalidQueueTransition, dto.ErrCodeInvalidState, "Queue item cannot change to the requested status"},
	{catalogsync.ErrInvalidRunTransition, dto.ErrCodeInvalidState, "Sync run cannot change to the requested phase"},
	{catalogsync.ErrEntityPendingDelete, dto.ErrCodeInvalidState, "Entity is deleted locally"},
	{catalogsync.ErrInvalidOrganization, dto.ErrCodeBadRequest, "Invalid organization"},
	{catalogsync.ErrInvalidQueueItem, dto.ErrCodeBadRequest, "Invalid queue item"},
	{catalogsync.ErrInvalidPayload, dto.ErrCodeBadRequest, "Payload must be a JSON object"},
	{catalogsync.ErrNoIDs, dto.ErrCodeBadRequest, "At least one id is required"},
	{scheduler.ErrJobQueueFull, dto.ErrCodeSchedulerBusy, "Too many sync jobs queued, try again later"},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeSchedulerBusy, "Background sync is not running"},
	{integration.ErrRemoteRejected, dto.ErrCodeRemoteRejected, "Remote catalog rejected the request"},
	{integration.ErrRemoteUnavailable, dto.ErrCodeRemoteUnavailable, "Remote catalog is unavailable"},
	{integration.ErrInvalidRemoteResponse, dto.ErrCodeRemoteUnavailable, "Remote catalog sent an invalid response"},
}

// getRequestID extracts the request ID set by the RequestID middleware
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader(middleware.HeaderRequestID)
}

// organizationID returns the organization resolved by the auth middleware.
// Handlers behind OrganizationAuth always have one; a miss is a wiring bug.
func (h *BaseHandler) organizationID(c *gin.Context) (uuid.UUID, bool) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Organization is not resolved")
	}
	return orgID, ok
}

// entityType parses the :entity_type path parameter
func (h *BaseHandler) entityType(c *gin.Context) (integration.EntityType, bool) {
	et, err := integration.ParseEntityType(c.Param("entity_type"))
	if err != nil {
		h.HandleError(c, err)
		return "", false
	}
	return et, true
}

// uuidParam parses a UUID path parameter
func (h *BaseHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// remoteIDParam parses the numeric :id path parameter. Provisional ids are negative.
func (h *BaseHandler) remoteIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.BadRequest(c, "Invalid id")
		return 0, false
	}
	return id, true
}

// readBody reads the whole request body. Overflowing the BodyLimit cap answers 413.
func (h *BaseHandler) readBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return nil, false
		}
		h.BadRequest(c, "Failed to read request body")
		return nil, false
	}
	return body, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work continuing in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(
		code, message, getRequestID(c), logger.GetTraceID(c.Request.Context()),
	))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response for a validator or binding failure
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
		return
	}
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(verrs, getRequestID(c)))
}

// HandleError maps a service error onto the API envelope. Unknown errors are
// logged and reported as 500 without leaking their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		h.ValidationError(c, err)
		return
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			message := m.message
			var re *integration.RemoteError
			if errors.As(err, &re) && re.Message != "" {
				message = message + ": " + re.Message
			}
			h.ErrorWithCode(c, m.code, message)
			return
		}
	}

	logger.L(c.Request.Context()).Error("Unhandled error", zap.Error(err))
	h.InternalError(c, "An unexpected error occurred")
}
