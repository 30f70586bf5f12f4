package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Notification.PollInterval)
	assert.Equal(t, 3, cfg.Notification.MaxAttempts)
	assert.Equal(t, 10, cfg.RateLimit.OutboundEmail.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.OutboundEmail.Window)
	assert.Equal(t, 5, cfg.RateLimit.Auth.Limit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Auth.Window)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, "log", cfg.Email.Driver)
	assert.Equal(t, 8081, cfg.Server.WorkerPort)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "dispatcher", cfg.Events.Group)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadShippedConfig(t *testing.T) {
	t.Setenv("HIRING_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yml"))
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Events.Broker)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, "dispatcher", cfg.Events.Group)
	assert.Equal(t, "http", cfg.Email.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadConfigFileValues(t *testing.T) {
	path := writeConfig(t, `
notification:
  poll_interval: 2s
  base_backoff: 1s
  max_backoff: 1m
rate_limit:
  outbound_email:
    limit: 20
    window: 30s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Notification.PollInterval)
	assert.Equal(t, time.Second, cfg.Notification.BaseBackoff)
	assert.Equal(t, 20, cfg.RateLimit.OutboundEmail.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.OutboundEmail.Window)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("HIRING_NOTIFICATION_MAX_ATTEMPTS", "5")
	t.Setenv("HIRING_JWT_SECRET", "s3cret")
	t.Setenv("HIRING_DB_PASSWORD", "hunter2")

	cfg, err := LoadConfig(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Notification.MaxAttempts)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=hunter2")
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "email:\n  driver: pigeon\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "rate_limit:\n  backend: redis\n"))
	assert.ErrorContains(t, err, "redis.url")

	_, err = LoadConfig(writeConfig(t, "notification:\n  base_backoff: 1m\n  max_backoff: 1s\n"))
	assert.Error(t, err)
}
