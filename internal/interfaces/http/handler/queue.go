package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	"github.com/vitrine/backend/internal/domain/catalogsync"
)

// QueueAPI is the queue management surface
type QueueAPI interface {
	AddToQueue(ctx context.Context, orgID uuid.UUID, input appsync.AddToQueueInput) (*catalogsync.SyncQueueItem, error)
	GetQueueStatus(ctx context.Context, orgID uuid.UUID) (*appsync.QueueStatusDTO, error)
	ListItems(ctx context.Context, orgID uuid.UUID, status string, page, pageSize int) (*appsync.QueueListResult, error)
	GetItem(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error)
	RequeueFailed(ctx context.Context, orgID, id uuid.UUID) (*catalogsync.SyncQueueItem, error)
	RequeueAllFailed(ctx context.Context, orgID uuid.UUID) (int, error)
	DeleteItem(ctx context.Context, orgID, id uuid.UUID) error
}

// QueueHandler serves the push queue endpoints
type QueueHandler struct {
	BaseHandler
	queue QueueAPI
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue QueueAPI) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// ListQueueQuery filters the queue listing
type ListQueueQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=pending processing completed failed"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Add enqueues one operation
// POST /sync/queue
func (h *QueueHandler) Add(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	var input appsync.AddToQueueInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.ValidationError(c, err)
		return
	}
	item, err := h.queue.AddToQueue(c.Request.Context(), orgID, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, appsync.ToQueueItemDTO(item))
}

// Status returns item counts per status
// GET /sync/queue/status
func (h *QueueHandler) Status(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	status, err := h.queue.GetQueueStatus(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// List pages through queue items
// GET /sync/queue/items
func (h *QueueHandler) List(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	var q ListQueueQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	result, err := h.queue.ListItems(c.Request.Context(), orgID, q.Status, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Get returns one queue item
// GET /sync/queue/:id
func (h *QueueHandler) Get(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	item, err := h.queue.GetItem(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appsync.ToQueueItemDTO(item))
}

// Retry puts one failed item back to pending
// POST /sync/queue/:id/retry
func (h *QueueHandler) Retry(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	item, err := h.queue.RequeueFailed(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appsync.ToQueueItemDTO(item))
}

// RetryAllFailed puts every failed item back to pending
// POST /sync/queue/retry-failed
func (h *QueueHandler) RetryAllFailed(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	n, err := h.queue.RequeueAllFailed(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"requeued": n})
}

// Delete removes an item that is not being processed
// DELETE /sync/queue/:id
func (h *QueueHandler) Delete(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.queue.DeleteItem(c.Request.Context(), orgID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
