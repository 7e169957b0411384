package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/vitrine/backend/internal/application/integration"
	"github.com/vitrine/backend/internal/domain/integration"
)

// IntegrationAPI manages the remote credentials of an organization
type IntegrationAPI interface {
	Configure(ctx context.Context, orgID uuid.UUID, req appintegration.ConfigureIntegrationRequest) (*integration.RemoteIntegration, error)
	Get(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error)
	Disable(ctx context.Context, orgID uuid.UUID) (*integration.RemoteIntegration, error)
	Delete(ctx context.Context, orgID uuid.UUID) error
	TestConnection(ctx context.Context, orgID uuid.UUID) (*appintegration.ConnectionTestResponse, error)
}

// IntegrationHandler serves the integration settings endpoints
type IntegrationHandler struct {
	BaseHandler
	integrations IntegrationAPI
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(integrations IntegrationAPI) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrations}
}

// Get returns the configured integration with masked secrets
// GET /integration
func (h *IntegrationHandler) Get(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	ri, err := h.integrations.Get(c.Request.Context(), orgID)
	if err != nil {
		// reading the settings is not a precondition failure
		if errors.Is(err, integration.ErrIntegrationNotFound) {
			h.NotFound(c, "No remote integration is configured")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIntegrationResponse(ri))
}

// Configure creates or replaces the integration
// PUT /integration
func (h *IntegrationHandler) Configure(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	var req appintegration.ConfigureIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	ri, err := h.integrations.Configure(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIntegrationResponse(ri))
}

// Disable switches the integration off
// POST /integration/disable
func (h *IntegrationHandler) Disable(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	ri, err := h.integrations.Disable(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIntegrationResponse(ri))
}

// Delete removes the integration
// DELETE /integration
func (h *IntegrationHandler) Delete(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	if err := h.integrations.Delete(c.Request.Context(), orgID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Test pings the remote catalog with the stored credentials
// POST /integration/test
func (h *IntegrationHandler) Test(c *gin.Context) {
	orgID, ok := h.organizationID(c)
	if !ok {
		return
	}
	result, err := h.integrations.TestConnection(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
