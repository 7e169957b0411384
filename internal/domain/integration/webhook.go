package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Webhook headers sent by the remote store
const (
	WebhookSignatureHeader  = "X-WC-Webhook-Signature"
	WebhookDeliveryIDHeader = "X-WC-Webhook-Delivery-ID"
	WebhookTopicHeader      = "X-WC-Webhook-Topic"
)

// SignWebhook returns the base64 HMAC-SHA256 of body under secret
func SignWebhook(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSignature checks a delivery signature in constant time
func VerifyWebhookSignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidWebhookSignature
	}
	expected := SignWebhook(secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// WebhookEvent is the part of a webhook delivery the sync engine needs
type WebhookEvent struct {
	EntityType EntityType
	// Action is the topic suffix, e.g. "created", "updated", "deleted"
	Action string
	ID     int64
}

// ParseWebhookEvent extracts the entity id from a delivery body. The topic header
// ("product.updated") is optional; when present its resource must match entityType.
func ParseWebhookEvent(entityType EntityType, topic string, body []byte) (*WebhookEvent, error) {
	if !entityType.IsValid() {
		return nil, ErrUnknownEntityType
	}
	event := &WebhookEvent{EntityType: entityType}
	if topic != "" {
		resource, action, _ := strings.Cut(topic, ".")
		if resource+"s" != entityType.String() {
			return nil, fmt.Errorf("%w: topic %q does not match %s", ErrUnknownEntityType, topic, entityType)
		}
		event.Action = action
	}

	var doc struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: webhook body: %v", ErrInvalidRemoteResponse, err)
	}
	id, err := doc.ID.Int64()
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: webhook body has no entity id", ErrInvalidRemoteResponse)
	}
	event.ID = id
	return event, nil
}
