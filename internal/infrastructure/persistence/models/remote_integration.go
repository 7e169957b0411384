package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/domain/integration"
)

// RemoteIntegrationModel stores an organization's remote catalog connection.
// Enabled, SyncIntervalMinutes and VerifySSL must not get a gorm default, or
// their zero values are left out of the upsert.
type RemoteIntegrationModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	BaseURL             string    `gorm:"type:varchar(500);not null"`
	ConsumerKey         string    `gorm:"type:varchar(255);not null"`
	ConsumerSecret      string    `gorm:"type:varchar(255);not null"`
	WebhookSecret       string    `gorm:"type:varchar(255)"`
	Enabled             bool      `gorm:"not null;index"`
	SyncIntervalMinutes int       `gorm:"not null"`
	VerifySSL           bool      `gorm:"column:verify_ssl;not null"`
	LastVerifiedAt      *time.Time
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RemoteIntegrationModel) TableName() string {
	return "remote_integrations"
}

// ToDomain converts the row to a domain RemoteIntegration
func (m *RemoteIntegrationModel) ToDomain() *integration.RemoteIntegration {
	return &integration.RemoteIntegration{
		ID:                  m.ID,
		OrganizationID:      m.OrganizationID,
		BaseURL:             m.BaseURL,
		ConsumerKey:         m.ConsumerKey,
		ConsumerSecret:      m.ConsumerSecret,
		WebhookSecret:       m.WebhookSecret,
		Enabled:             m.Enabled,
		SyncIntervalMinutes: m.SyncIntervalMinutes,
		VerifySSL:           m.VerifySSL,
		LastVerifiedAt:      utcPtr(m.LastVerifiedAt),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// FromDomain populates the row from a domain RemoteIntegration
func (m *RemoteIntegrationModel) FromDomain(ri *integration.RemoteIntegration) {
	m.ID = ri.ID
	m.OrganizationID = ri.OrganizationID
	m.BaseURL = ri.BaseURL
	m.ConsumerKey = ri.ConsumerKey
	m.ConsumerSecret = ri.ConsumerSecret
	m.WebhookSecret = ri.WebhookSecret
	m.Enabled = ri.Enabled
	m.SyncIntervalMinutes = ri.SyncIntervalMinutes
	m.VerifySSL = ri.VerifySSL
	m.LastVerifiedAt = ri.LastVerifiedAt
	m.CreatedAt = ri.CreatedAt
	m.UpdatedAt = ri.UpdatedAt
}
