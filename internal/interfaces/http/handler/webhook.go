package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appsync "github.com/vitrine/backend/internal/application/catalogsync"
	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/logger"
)

// DefaultWebhookDedupeTTL is how long a delivery id is remembered
const DefaultWebhookDedupeTTL = 24 * time.Hour

// WebhookVerifier checks delivery signatures
type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, orgID uuid.UUID, body []byte, signature string) error
}

// TargetedSyncer pulls specific remote ids
type TargetedSyncer interface {
	SyncSpecific(ctx context.Context, orgID uuid.UUID, entityType integration.EntityType, ids []int64, progress appsync.ProgressFunc) (*catalogsync.SyncRun, error)
}

// WebhookHandler turns remote change notifications into targeted pulls
type WebhookHandler struct {
	BaseHandler
	verifier WebhookVerifier
	syncer   TargetedSyncer
	dedupe   catalogsync.IdempotencyStore
	ttl      time.Duration
}

// NewWebhookHandler creates a new WebhookHandler. dedupe may be nil.
func NewWebhookHandler(verifier WebhookVerifier, syncer TargetedSyncer, dedupe catalogsync.IdempotencyStore, ttl time.Duration) *WebhookHandler {
	if ttl <= 0 {
		ttl = DefaultWebhookDedupeTTL
	}
	return &WebhookHandler{verifier: verifier, syncer: syncer, dedupe: dedupe, ttl: ttl}
}

// WebhookResult describes what a delivery caused
type WebhookResult struct {
	Duplicate bool                `json:"duplicate,omitempty"`
	Ignored   bool                `json:"ignored,omitempty"`
	Action    string              `json:"action,omitempty"`
	ID        int64               `json:"id,omitempty"`
	Run       *appsync.SyncRunDTO `json:"run,omitempty"`
}

// Receive handles one webhook delivery
// POST /webhooks/:organization_id/:entity_type
func (h *WebhookHandler) Receive(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "organization_id")
	if !ok {
		return
	}
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	ctx, log := logger.WithOrganizationID(c.Request.Context(), logger.GetGinLogger(c), orgID.String())
	c.Request = c.Request.WithContext(ctx)
	c.Set("logger", log)

	body, ok := h.readBody(c)
	if !ok {
		return
	}
	if err := h.verifier.VerifyWebhook(ctx, orgID, body, c.GetHeader(integration.WebhookSignatureHeader)); err != nil {
		log.Warn("Webhook rejected", zap.String("entity_type", et.String()), zap.Error(err))
		h.HandleError(c, err)
		return
	}

	if deliveryID := c.GetHeader(integration.WebhookDeliveryIDHeader); deliveryID != "" && h.dedupe != nil {
		fresh, err := h.dedupe.MarkProcessed(ctx, "webhook:"+orgID.String()+":"+deliveryID, h.ttl)
		if err != nil {
			// a broken dedupe store must not drop deliveries
			log.Warn("Webhook dedupe unavailable", zap.Error(err))
		} else if !fresh {
			log.Debug("Duplicate webhook delivery", zap.String("delivery_id", deliveryID))
			h.Success(c, WebhookResult{Duplicate: true})
			return
		}
	}

	event, err := integration.ParseWebhookEvent(et, c.GetHeader(integration.WebhookTopicHeader), body)
	if err != nil {
		switch {
		case errors.Is(err, integration.ErrInvalidRemoteResponse):
			// ping deliveries carry no entity id
			log.Info("Webhook without entity id ignored", zap.String("entity_type", et.String()))
			h.Success(c, WebhookResult{Ignored: true})
		case errors.Is(err, integration.ErrUnknownEntityType):
			h.BadRequest(c, "Webhook topic does not match entity type")
		default:
			h.HandleError(c, err)
		}
		return
	}

	result := WebhookResult{Action: event.Action, ID: event.ID}
	if event.Action == "deleted" {
		log.Warn("Remote entity deleted",
			zap.String("entity_type", et.String()),
			zap.Int64("remote_id", event.ID),
		)
		h.Success(c, result)
		return
	}

	run, err := h.syncer.SyncSpecific(ctx, orgID, et, []int64{event.ID}, nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result.Run = appsync.ToSyncRunDTO(run)
	h.Success(c, result)
}
