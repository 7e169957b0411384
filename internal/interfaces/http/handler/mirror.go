package handler

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/interfaces/http/dto"
)

// MirrorAPI reads the local mirror and records local changes
type MirrorAPI interface {
	CreateLocal(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, payload json.RawMessage) (*appsync.LocalChange, error)
	UpdateLocal(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64, patch json.RawMessage) (*appsync.LocalChange, error)
	DeleteLocal(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) (*appsync.LocalChange, error)
	Get(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, remoteID int64) (*catalogsync.MirrorEntity, error)
	List(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, filter catalogsync.MirrorFilter) (*appsync.MirrorListResult, error)
}

// MirrorHandler serves the mirrored entities of an organization
type MirrorHandler struct {
	BaseHandler
	mirror MirrorAPI
}

// NewMirrorHandler creates a new MirrorHandler
func NewMirrorHandler(mirror MirrorAPI) *MirrorHandler {
	return &MirrorHandler{mirror: mirror}
}

// ListMirrorQuery filters the mirror listing
type ListMirrorQuery struct {
	Search   string `form:"search" binding:"omitempty,max=100"`
	Status   string `form:"status" binding:"omitempty,max=50"`
	Dirty    *bool  `form:"dirty"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// LocalChangeResponse is returned by the mutating mirror endpoints
type LocalChangeResponse struct {
	Entity    *appsync.MirrorEntityDTO `json:"entity,omitempty"`
	QueueItem *appsync.QueueItemDTO    `json:"queue_item,omitempty"`
}

func toLocalChangeResponse(change *appsync.LocalChange) LocalChangeResponse {
	var resp LocalChangeResponse
	if change == nil {
		return resp
	}
	if change.Entity != nil {
		e := appsync.ToMirrorEntityDTO(change.Entity)
		resp.Entity = &e
	}
	if change.Item != nil {
		q := appsync.ToQueueItemDTO(change.Item)
		resp.QueueItem = &q
	}
	return resp
}

// List pages through mirrored entities
// GET /mirror/:entity_type
func (h *MirrorHandler) List(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var q ListMirrorQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	result, err := h.mirror.List(c.Request.Context(), orgID, et, catalogsync.MirrorFilter{
		Search:   q.Search,
		Status:   q.Status,
		Dirty:    q.Dirty,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Get returns one mirrored entity
// GET /mirror/:entity_type/:id
func (h *MirrorHandler) Get(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	id, ok := h.remoteIDParam(c)
	if !ok {
		return
	}
	entity, err := h.mirror.Get(c.Request.Context(), orgID, et, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appsync.ToMirrorEntityDTO(entity))
}

// Create stores a new local entity and queues its remote create
// POST /mirror/:entity_type
func (h *MirrorHandler) Create(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	payload, ok := h.readObject(c)
	if !ok {
		return
	}
	change, err := h.mirror.CreateLocal(c.Request.Context(), orgID, et, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toLocalChangeResponse(change))
}

// Update merges a patch into a mirrored entity and queues the remote update
// PUT /mirror/:entity_type/:id
func (h *MirrorHandler) Update(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	id, ok := h.remoteIDParam(c)
	if !ok {
		return
	}
	patch, ok := h.readObject(c)
	if !ok {
		return
	}
	change, err := h.mirror.UpdateLocal(c.Request.Context(), orgID, et, id, patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toLocalChangeResponse(change))
}

// Delete marks a mirrored entity deleted and queues the remote delete
// DELETE /mirror/:entity_type/:id
func (h *MirrorHandler) Delete(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	id, ok := h.remoteIDParam(c)
	if !ok {
		return
	}
	change, err := h.mirror.DeleteLocal(c.Request.Context(), orgID, et, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toLocalChangeResponse(change))
}

// readObject reads the raw body and requires a JSON object
func (h *MirrorHandler) readObject(c *gin.Context) (json.RawMessage, bool) {
	body, ok := h.readBody(c)
	if !ok {
		return nil, false
	}
	if !json.Valid(body) {
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
		return nil, false
	}
	if !catalogsync.IsJSONObject(body) {
		h.HandleError(c, catalogsync.ErrInvalidPayload)
		return nil, false
	}
	return json.RawMessage(body), true
}
