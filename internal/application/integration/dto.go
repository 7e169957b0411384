package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// ConfigureIntegrationRequest creates or replaces an organization's remote credentials
type ConfigureIntegrationRequest struct {
	BaseURL             string `json:"base_url" validate:"required,url"`
	ConsumerKey         string `json:"consumer_key" validate:"required"`
	ConsumerSecret      string `json:"consumer_secret" validate:"required"`
	WebhookSecret       string `json:"webhook_secret,omitempty"`
	SyncIntervalMinutes *int   `json:"sync_interval_minutes,omitempty" validate:"omitempty,min=0,max=10080"`
	VerifySSL           *bool  `json:"verify_ssl,omitempty"`
	Enabled             *bool  `json:"enabled,omitempty"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// IntegrationResponse represents an integration in API responses. Secrets are masked.
type IntegrationResponse struct {
	ID                  uuid.UUID  `json:"id"`
	OrganizationID      uuid.UUID  `json:"organization_id"`
	BaseURL             string     `json:"base_url"`
	ConsumerKey         string     `json:"consumer_key"`
	HasWebhookSecret    bool       `json:"has_webhook_secret"`
	Enabled             bool       `json:"enabled"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	VerifySSL           bool       `json:"verify_ssl"`
	LastVerifiedAt      *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ConnectionTestResponse is the outcome of a connection test
type ConnectionTestResponse struct {
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// ToIntegrationResponse converts an integration to its API representation
func ToIntegrationResponse(ri *integration.RemoteIntegration) *IntegrationResponse {
	return &IntegrationResponse{
		ID:                  ri.ID,
		OrganizationID:      ri.OrganizationID,
		BaseURL:             ri.BaseURL,
		ConsumerKey:         maskKey(ri.ConsumerKey),
		HasWebhookSecret:    ri.WebhookSecret != "",
		Enabled:             ri.Enabled,
		SyncIntervalMinutes: ri.SyncIntervalMinutes,
		VerifySSL:           ri.VerifySSL,
		LastVerifiedAt:      ri.LastVerifiedAt,
		CreatedAt:           ri.CreatedAt,
		UpdatedAt:           ri.UpdatedAt,
	}
}

// maskKey keeps the last four characters
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
