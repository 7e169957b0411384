package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrine/backend/internal/infrastructure/auth"
	"github.com/vitrine/backend/internal/infrastructure/logger"
	"github.com/vitrine/backend/internal/interfaces/http/dto"
)

// Context keys set by the organization middleware
const (
	JWTClaimsKey      = "jwt_claims"
	OrganizationIDKey = "organization_id"
	organizationKey   = "organization_uuid"
	AuthHeaderKey     = "Authorization"
	BearerPrefix      = "Bearer "
)

// TokenValidator validates a bearer token into claims
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// OrganizationAuthConfig holds configuration for the organization middleware
type OrganizationAuthConfig struct {
	// Validator is required when RequireAuth is set
	Validator TokenValidator
	// RequireAuth rejects requests without a bearer token. When false the
	// X-Organization-ID header is trusted, which is meant for development
	// and for deployments behind an authenticating gateway.
	RequireAuth bool
	Logger      *zap.Logger
}

// OrganizationAuth resolves the organization every API request is scoped to.
// A valid bearer token always wins; the header fallback applies only when
// RequireAuth is off.
func OrganizationAuth(cfg OrganizationAuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("auth")

	return func(c *gin.Context) {
		orgID, claims, err := resolveOrganization(c, cfg)
		if err != nil {
			log.Warn("Organization resolution failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString("request_id")),
			)
			abortAuth(c, err)
			return
		}

		if claims != nil {
			c.Set(JWTClaimsKey, claims)
		}
		c.Set(organizationKey, orgID)
		c.Set(OrganizationIDKey, orgID.String())

		ctx := c.Request.Context()
		ctx, reqLogger := logger.WithOrganizationID(ctx, logger.FromContext(ctx), orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set("logger", reqLogger)

		c.Next()
	}
}

var (
	errMissingCredentials = errors.New("missing authorization header")
	errMalformedHeader    = errors.New("invalid authorization header format")
	errInvalidOrgHeader   = errors.New("X-Organization-ID is not a valid UUID")
)

func resolveOrganization(c *gin.Context, cfg OrganizationAuthConfig) (uuid.UUID, *auth.Claims, error) {
	header := c.GetHeader(AuthHeaderKey)
	if header != "" && cfg.Validator != nil {
		if !strings.HasPrefix(header, BearerPrefix) {
			return uuid.Nil, nil, errMalformedHeader
		}
		claims, err := cfg.Validator.ValidateToken(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			return uuid.Nil, nil, err
		}
		orgID, err := claims.OrganizationUUID()
		if err != nil {
			return uuid.Nil, nil, err
		}
		return orgID, claims, nil
	}

	if cfg.RequireAuth {
		return uuid.Nil, nil, errMissingCredentials
	}

	raw := c.GetHeader(HeaderOrganizationID)
	if raw == "" {
		return uuid.Nil, nil, errMissingCredentials
	}
	orgID, err := uuid.Parse(raw)
	if err != nil || orgID == uuid.Nil {
		return uuid.Nil, nil, errInvalidOrgHeader
	}
	return orgID, nil, nil
}

func abortAuth(c *gin.Context, err error) {
	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingOrganization), errors.Is(err, errMalformedHeader):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	case errors.Is(err, errInvalidOrgHeader):
		code, message = dto.ErrCodeBadRequest, err.Error()
	}
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(
		code, message, c.GetString("request_id"), logger.GetTraceID(c.Request.Context()),
	))
}

// GetOrganizationID returns the organization resolved for the request
func GetOrganizationID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(organizationKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}
