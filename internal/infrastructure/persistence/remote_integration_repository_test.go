package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/backend/internal/domain/integration"
)

func TestGormRemoteIntegrationRepository(t *testing.T) {
	repo := NewGormRemoteIntegrationRepository(newSQLiteDB(t))
	ctx := context.Background()
	orgID := newOrg()

	_, err := repo.FindByOrganization(ctx, orgID)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)

	ri, err := integration.NewRemoteIntegration(orgID, "https://shop.example.com/", "ck_1", "cs_1")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, ri))

	got, err := repo.FindByOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", got.BaseURL)
	assert.True(t, got.Enabled)
	assert.True(t, got.VerifySSL)

	require.NoError(t, got.UpdateCredentials("https://shop.example.com", "ck_2", "cs_2"))
	got.Disable()
	require.NoError(t, repo.Save(ctx, got))

	enabled, err := repo.FindEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	got, err = repo.FindByOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "ck_2", got.ConsumerKey)
	assert.False(t, got.Enabled)

	got.VerifySSL = false
	got.SyncIntervalMinutes = 0
	require.NoError(t, repo.Save(ctx, got))
	got, err = repo.FindByOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.False(t, got.VerifySSL)
	assert.Zero(t, got.SyncIntervalMinutes, "0 disables scheduled syncs and must survive a save")

	require.NoError(t, repo.Delete(ctx, orgID))
	assert.ErrorIs(t, repo.Delete(ctx, orgID), integration.ErrIntegrationNotFound)
}
