package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vitrine/backend/internal/domain/catalogsync"
	"github.com/vitrine/backend/internal/domain/integration"
	"github.com/vitrine/backend/internal/infrastructure/config"
)

func TestNewDatabase_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "mirror.db"),
		LogLevel:   "warn",
	}

	db, err := NewDatabase(cfg, WithGormLogger(zap.NewNop(), cfg.LogLevel, time.Second, false))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, AutoMigrate(db.DB))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)

	for _, table := range []string{"mirrored_products", "mirrored_customers", "mirrored_orders", "sync_status", "sync_queue", "remote_integrations"} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDatabase_TransactionRollsBack(t *testing.T) {
	db := &Database{DB: newSQLiteDB(t), Driver: "sqlite"}
	ctx := context.Background()
	orgID := newOrg()

	err := db.Transaction(ctx, func(tx *gorm.DB) error {
		item, err := catalogsync.NewSyncQueueItem(orgID, integration.EntityTypeProducts, 7,
			catalogsync.QueueOperationUpdate, []byte(`{"name":"x"}`), 3, t0)
		require.NoError(t, err)
		require.NoError(t, NewGormSyncQueueRepository(tx).Enqueue(ctx, item))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	counts, err := NewGormSyncQueueRepository(db.DB).CountByStatus(ctx, orgID)
	require.NoError(t, err)
	assert.Zero(t, counts[catalogsync.QueueStatusPending])
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, defaultPageSize},
		{3, 10, 3, 10},
		{-1, 500, 1, maxPageSize},
	}
	for _, tt := range tests {
		p, s := normalizePage(tt.page, tt.size)
		assert.Equal(t, tt.wantPage, p)
		assert.Equal(t, tt.wantSize, s)
	}
}
