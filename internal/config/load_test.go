package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the settings that have no defaults. Each test can
// override individual keys on top.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOKUSHO_DATABASE_URL", "postgres://localhost:5432/dokusho_test")
	t.Setenv("DOKUSHO_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DOKUSHO_AUTH_ADMIN_KEY_HASH", "$2a$10$abcdefghijklmnopqrstuvwxyz012345678901234567890123456")
	t.Setenv("DOKUSHO_LLM_GEMINI_API_KEY", "test-api-key")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.ModelName)
	assert.Equal(t, 15, cfg.Worker.PollIntervalSeconds)
	assert.Equal(t, 10, cfg.Worker.LeaseDurationMinutes)
	assert.Equal(t, 120, cfg.Worker.KeepAliveSeconds)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOKUSHO_SERVER_PORT", "9999")
	t.Setenv("DOKUSHO_SERVER_LOG_LEVEL", "debug")
	t.Setenv("DOKUSHO_WORKER_POLL_INTERVAL_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 5, cfg.Worker.PollIntervalSeconds)
}

func TestLoad_MissingRequiredFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOKUSHO_DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_InvalidLogLevelFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOKUSHO_SERVER_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
}

func TestWorkerConfig_Durations(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, cfg.Worker.PollInterval().Seconds(), float64(cfg.Worker.PollIntervalSeconds))
	assert.Equal(t, cfg.Worker.LeaseDuration().Minutes(), float64(cfg.Worker.LeaseDurationMinutes))
	// Keep-alive must renew well inside the lease window.
	assert.Less(t, cfg.Worker.KeepAliveInterval(), cfg.Worker.LeaseDuration()/2)
}
