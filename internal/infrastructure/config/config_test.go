package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the tests touch; t.Setenv restores them afterwards
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

var testEnvKeys = []string{
	"VITRINE_APP_NAME", "VITRINE_APP_ENV", "VITRINE_APP_PORT",
	"VITRINE_DATABASE_DRIVER", "VITRINE_DATABASE_HOST", "VITRINE_DATABASE_PORT",
	"VITRINE_DATABASE_PASSWORD", "VITRINE_DATABASE_SSLMODE",
	"VITRINE_DATABASE_MAX_OPEN_CONNS", "VITRINE_DATABASE_MAX_IDLE_CONNS",
	"VITRINE_JWT_SECRET", "VITRINE_JWT_REQUIRE_AUTH",
	"VITRINE_SYNC_BATCH_SIZE", "VITRINE_SYNC_MAX_RETRIES", "VITRINE_SYNC_CHUNK_INTERVAL",
	"VITRINE_SYNC_FAIL_REJECTED_IMMEDIATELY", "VITRINE_REMOTE_PAGE_SIZE",
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t, testEnvKeys...)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "vitrine-sync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 25, cfg.Sync.BatchSize)
		assert.Equal(t, 3, cfg.Sync.MaxRetries)
		assert.Equal(t, 500*time.Millisecond, cfg.Sync.ChunkInterval)
		assert.Equal(t, 30*time.Minute, cfg.Sync.StaleAfter)
		assert.Equal(t, 15*time.Minute, cfg.Sync.ProcessingLease)
		assert.False(t, cfg.Sync.FailRejectedImmediately)
		assert.Equal(t, 100, cfg.Remote.PageSize)
		assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("loads values from environment variables with VITRINE prefix", func(t *testing.T) {
		clearEnv(t, testEnvKeys...)
		t.Setenv("VITRINE_APP_PORT", "9000")
		t.Setenv("VITRINE_DATABASE_DRIVER", "sqlite")
		t.Setenv("VITRINE_SYNC_BATCH_SIZE", "10")
		t.Setenv("VITRINE_SYNC_CHUNK_INTERVAL", "2s")
		t.Setenv("VITRINE_SYNC_FAIL_REJECTED_IMMEDIATELY", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, 10, cfg.Sync.BatchSize)
		assert.Equal(t, 2*time.Second, cfg.Sync.ChunkInterval)
		assert.True(t, cfg.Sync.FailRejectedImmediately)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		clearEnv(t, testEnvKeys...)
		t.Setenv("VITRINE_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		clearEnv(t, testEnvKeys...)
		t.Setenv("VITRINE_DATABASE_MAX_OPEN_CONNS", "5")
		t.Setenv("VITRINE_DATABASE_MAX_IDLE_CONNS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects page size above API limit", func(t *testing.T) {
		clearEnv(t, testEnvKeys...)
		t.Setenv("VITRINE_REMOTE_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote.page_size")
	})

	t.Run("requires long jwt secret when auth is required", func(t *testing.T) {
		clearEnv(t, testEnvKeys...)
		t.Setenv("VITRINE_JWT_REQUIRE_AUTH", "true")
		t.Setenv("VITRINE_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})
}

func TestLoadFrom_File(t *testing.T) {
	clearEnv(t, testEnvKeys...)
	path := filepath.Join(t.TempDir(), "sync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
name = "mirror"

[sync]
batch_size = 40
queue_batch_size = 7
stale_after = "5m"

[scheduler]
enabled = true
full_sync_enabled = true
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "mirror", cfg.App.Name)
	assert.Equal(t, 40, cfg.Sync.BatchSize)
	assert.Equal(t, 7, cfg.Sync.QueueBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Sync.StaleAfter)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Scheduler.FullSyncEnabled)

	_, err = LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t, testEnvKeys...)
		t.Setenv("VITRINE_APP_ENV", "production")
		t.Setenv("VITRINE_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("VITRINE_JWT_REQUIRE_AUTH", "true")
		t.Setenv("VITRINE_DATABASE_PASSWORD", "secure-password")
		t.Setenv("VITRINE_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("VITRINE_DATABASE_PASSWORD")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("VITRINE_DATABASE_SSLMODE", "disable")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects sqlite in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("VITRINE_DATABASE_DRIVER", "sqlite")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite is not supported in production")
	})

	t.Run("requires auth in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("VITRINE_JWT_REQUIRE_AUTH", "false")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.require_auth must be true in production")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "testuser", Password: "testpass", DBName: "testdb", SSLMode: "disable"}
		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
