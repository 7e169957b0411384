package integration

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSyncIntervalMinutes is the scheduled full sync interval for new integrations
const DefaultSyncIntervalMinutes = 60

// RemoteIntegration holds an organization's remote catalog endpoint and credentials
type RemoteIntegration struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	// BaseURL is the store root, e.g. https://shop.example.com
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	// WebhookSecret signs webhook deliveries from the remote store
	WebhookSecret string
	Enabled       bool
	// SyncIntervalMinutes drives scheduled full syncs, 0 disables them
	SyncIntervalMinutes int
	VerifySSL           bool
	LastVerifiedAt      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewRemoteIntegration creates a validated, enabled integration
func NewRemoteIntegration(orgID uuid.UUID, baseURL, key, secret string) (*RemoteIntegration, error) {
	now := time.Now().UTC()
	ri := &RemoteIntegration{
		ID:                  uuid.New(),
		OrganizationID:      orgID,
		BaseURL:             strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		ConsumerKey:         strings.TrimSpace(key),
		ConsumerSecret:      strings.TrimSpace(secret),
		Enabled:             true,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		VerifySSL:           true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := ri.Validate(); err != nil {
		return nil, err
	}
	return ri, nil
}

// Validate checks that the integration can be used to reach the remote catalog
func (r *RemoteIntegration) Validate() error {
	if r.OrganizationID == uuid.Nil {
		return fmt.Errorf("%w: organization id is required", ErrConfiguration)
	}
	if r.BaseURL == "" {
		return fmt.Errorf("%w: base url is required", ErrConfiguration)
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: base url %q is not an absolute http(s) url", ErrConfiguration, r.BaseURL)
	}
	if r.ConsumerKey == "" || r.ConsumerSecret == "" {
		return fmt.Errorf("%w: consumer key and secret are required", ErrConfiguration)
	}
	if r.SyncIntervalMinutes < 0 {
		return fmt.Errorf("%w: sync interval cannot be negative", ErrConfiguration)
	}
	return nil
}

// Usable returns a configuration error if the integration cannot be used right now
func (r *RemoteIntegration) Usable() error {
	if !r.Enabled {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrIntegrationDisabled)
	}
	return r.Validate()
}

// UpdateCredentials replaces the endpoint and credentials
func (r *RemoteIntegration) UpdateCredentials(baseURL, key, secret string) error {
	r.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	r.ConsumerKey = strings.TrimSpace(key)
	r.ConsumerSecret = strings.TrimSpace(secret)
	r.LastVerifiedAt = nil
	r.UpdatedAt = time.Now().UTC()
	return r.Validate()
}

// Enable switches the integration on
func (r *RemoteIntegration) Enable() {
	r.Enabled = true
	r.UpdatedAt = time.Now().UTC()
}

// Disable switches the integration off
func (r *RemoteIntegration) Disable() {
	r.Enabled = false
	r.UpdatedAt = time.Now().UTC()
}

// MarkVerified records a successful connection test
func (r *RemoteIntegration) MarkVerified(at time.Time) {
	at = at.UTC()
	r.LastVerifiedAt = &at
	r.UpdatedAt = at
}

// SyncInterval returns the scheduled full sync interval
func (r *RemoteIntegration) SyncInterval() time.Duration {
	return time.Duration(r.SyncIntervalMinutes) * time.Minute
}

// RemoteIntegrationRepository persists remote integrations
type RemoteIntegrationRepository interface {
	// FindByOrganization returns ErrIntegrationNotFound when none exists
	FindByOrganization(ctx context.Context, orgID uuid.UUID) (*RemoteIntegration, error)
	// FindEnabled returns all enabled integrations
	FindEnabled(ctx context.Context) ([]*RemoteIntegration, error)
	// Save creates or updates the integration
	Save(ctx context.Context, integration *RemoteIntegration) error
	// Delete removes the organization's integration
	Delete(ctx context.Context, orgID uuid.UUID) error
}
