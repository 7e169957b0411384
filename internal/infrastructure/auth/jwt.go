// Package auth issues and validates the bearer tokens that scope API calls to an organization.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vitrine/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrMissingSecret       = errors.New("jwt secret is not configured")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenNotYetValid    = errors.New("token is not yet valid")
	ErrMissingOrganization = errors.New("missing organization_id in claims")
)

// DefaultTokenTTL is used when IssueToken is given a non-positive ttl
const DefaultTokenTTL = 24 * time.Hour

// Claims are the claims of an API token
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"organization_id"`
}

// OrganizationUUID parses the organization claim
func (c *Claims) OrganizationUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.OrganizationID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrMissingOrganization
	}
	return id, nil
}

// JWTService signs and verifies HS256 tokens
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a JWT service from config
func NewJWTService(cfg config.JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// IssueToken signs a token for subject acting on behalf of orgID
func (s *JWTService) IssueToken(orgID uuid.UUID, subject string, ttl time.Duration) (string, error) {
	if orgID == uuid.Nil {
		return "", ErrMissingOrganization
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrganizationID: orgID.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken verifies signature, lifetime, issuer and the organization claim
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.OrganizationUUID(); err != nil {
		return nil, err
	}
	return claims, nil
}
