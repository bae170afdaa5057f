package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, DriverMySQL, cfg.Storage.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "recruitflow", cfg.Database.Name)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.OverdueCron)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.Error(t, cfg.ValidateServe(), "serve needs a jwt secret")
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
storage:
  driver: memory
database:
  host: db.internal
dispatch:
  webhook_url: http://tasks.internal/hooks
  timeout: 3s
log:
  format: json
`), 0o600))

	t.Setenv("RECRUITFLOW_SERVER_PORT", "9090")
	t.Setenv("RECRUITFLOW_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "env beats file")
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "http://tasks.internal/hooks", cfg.Dispatch.WebhookURL)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.ValidateServe())
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("RECRUITFLOW_STORAGE_DRIVER", "postgres")
		_, err := Load("")
		assert.ErrorContains(t, err, "storage.driver")
	})
	t.Run("bad log format", func(t *testing.T) {
		t.Setenv("RECRUITFLOW_LOG_FORMAT", "xml")
		_, err := Load("")
		assert.ErrorContains(t, err, "log.format")
	})
	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
