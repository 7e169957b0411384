package integration

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/domain/integration"
)

// catalogEvicter is implemented by factories that cache catalogs per organization
type catalogEvicter interface {
	Evict(orgID uuid.UUID)
}

// IntegrationService manages the remote catalog credentials of organizations
type IntegrationService struct {
	repo     integration.RemoteIntegrationRepository
	factory  integration.RemoteCatalogFactory
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewIntegrationService creates a new IntegrationService
func NewIntegrationService(
	repo integration.RemoteIntegrationRepository,
	factory integration.RemoteCatalogFactory,
	logger *zap.Logger,
) *IntegrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationService{
		repo:     repo,
		factory:  factory,
		validate: validator.New(),
		logger:   logger.Named("integration"),
		now:      time.Now,
	}
}

// ---------------------------------------------------------------------------
// CRUD Operations
// ---------------------------------------------------------------------------

// Configure creates the organization's integration or replaces its credentials
func (s *IntegrationService) Configure(ctx context.Context, orgID uuid.UUID, req ConfigureIntegrationRequest) (*integration.RemoteIntegration, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	ri, err := s.repo.FindByOrganization(ctx, orgID)
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound):
		ri, err = integration.NewRemoteIntegration(orgID, req.BaseURL, req.ConsumerKey, req.ConsumerSecret)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := ri.UpdateCredentials(req.BaseURL, req.ConsumerKey, req.ConsumerSecret); err != nil {
			return nil, err
		}
	}

	if req.WebhookSecret != "" {
		ri.WebhookSecret = req.WebhookSecret
	}
	if req.SyncIntervalMinutes != nil {
		ri.SyncIntervalMinutes = *req.SyncIntervalMinutes
	}
	if req.VerifySSL != nil {
		ri.VerifySSL = *req.VerifySSL
	}
	if req.Enabled != nil {
		if *req.Enabled {
			ri.Enable()
		} else {
			ri.Disable()
		}
	}
	if err := ri.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, ri); err != nil {
		return nil, err
	}
	s.evict(orgID)

	s.logger.Info("Remote integration configured",
		zap.String("organization_id", orgID.String()),
		zap.String("base_url", ri.BaseURL),
		zap.Bool("enabled", ri.Enabled),
	)
	return ri, nil
}

// Get returns the organization's integration
func (s *IntegrationService) Get(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error) {
	return s.repo.FindByOrganization(ctx, orgID)
}

// Disable switches the integration off without dropping its credentials
func (s *IntegrationService) Disable(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error) {
	ri, err := s.repo.FindByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !ri.Enabled {
		return ri, nil
	}
	ri.Disable()
	if err := s.repo.Save(ctx, ri); err != nil {
		return nil, err
	}
	s.evict(orgID)
	s.logger.Info("Remote integration disabled", zap.String("organization_id", orgID.String()))
	return ri, nil
}

// Delete removes the integration. Mirror rows and queue items are kept.
func (s *IntegrationService) Delete(ctx context.Context, orgID uuid.UUID) error {
	if err := s.repo.Delete(ctx, orgID); err != nil {
		return err
	}
	s.evict(orgID)
	s.logger.Info("Remote integration deleted", zap.String("organization_id", orgID.String()))
	return nil
}

// ---------------------------------------------------------------------------
// Connectivity
// ---------------------------------------------------------------------------

// TestConnection pings the remote catalog with the stored credentials.
// A remote failure is reported in the response; only local failures are returned as errors.
func (s *IntegrationService) TestConnection(ctx context.Context, orgID uuid.UUID) (*ConnectionTestResponse, error) {
	ri, err := s.repo.FindByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.factory.ForIntegration(ctx, ri)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := catalog.Ping(ctx); err != nil {
		s.logger.Warn("Remote connection test failed",
			zap.String("organization_id", orgID.String()),
			zap.Error(err),
		)
		return &ConnectionTestResponse{OK: false, Error: err.Error(), VerifiedAt: now}, nil
	}

	ri.MarkVerified(now)
	if err := s.repo.Save(ctx, ri); err != nil {
		return nil, err
	}
	return &ConnectionTestResponse{OK: true, VerifiedAt: now}, nil
}

// VerifyWebhook checks a webhook delivery against the organization's webhook secret
func (s *IntegrationService) VerifyWebhook(ctx context.Context, orgID uuid.UUID, body []byte, signature string) error {
	ri, err := s.repo.FindByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if !ri.Enabled {
		return integration.ErrIntegrationDisabled
	}
	return integration.VerifyWebhookSignature(ri.WebhookSecret, body, signature)
}

func (s *IntegrationService) evict(orgID uuid.UUID) {
	if e, ok := s.factory.(catalogEvicter); ok {
		e.Evict(orgID)
	}
}
