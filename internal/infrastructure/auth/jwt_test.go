package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/backend/internal/infrastructure/config"
)

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "vitrine-test",
	})
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(config.JWTConfig{})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestIssueAndValidate(t *testing.T) {
	svc := newTestJWTService(t)
	orgID := uuid.New()

	token, err := svc.IssueToken(orgID, "operator", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, "vitrine-test", claims.Issuer)

	got, err := claims.OrganizationUUID()
	require.NoError(t, err)
	assert.Equal(t, orgID, got)
}

func TestIssueToken_RequiresOrganization(t *testing.T) {
	_, err := newTestJWTService(t).IssueToken(uuid.Nil, "operator", time.Hour)
	assert.ErrorIs(t, err, ErrMissingOrganization)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newTestJWTService(t)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }

	token, err := svc.IssueToken(uuid.New(), "operator", time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_NotYetValid(t *testing.T) {
	svc := newTestJWTService(t)
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	token, err := svc.IssueToken(uuid.New(), "operator", time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newTestJWTService(t)
	other, err := NewJWTService(config.JWTConfig{Secret: "another-secret", Issuer: "vitrine-test"})
	require.NoError(t, err)
	foreign, err := other.IssueToken(uuid.New(), "operator", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewJWTService(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "elsewhere"})
	require.NoError(t, err)
	misissued, err := wrongIssuer.IssueToken(uuid.New(), "operator", time.Hour)
	require.NoError(t, err)

	noOrg, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vitrine-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret-key-at-least-32-chars"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{OrganizationID: uuid.NewString()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"wrong issuer", misissued, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
		{"missing organization", noOrg, ErrMissingOrganization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
