package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

// TestLoadDefaults verifies the defaults applied when only required values are set.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("STOCKROOM_AUTH_JWT_SECRET", testSecret)

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "memory", cfg.RateLimit.Store)
	require.Len(t, cfg.RateLimit.Tiers, 2)
	assert.Equal(t, "per-minute", cfg.RateLimit.Tiers[0].Name)
	assert.Equal(t, time.Minute, cfg.RateLimit.Tiers[0].Window)
	assert.Equal(t, time.Hour, cfg.RateLimit.Tiers[1].Window)
	assert.Equal(t, 2*time.Minute, cfg.Task.TaskBudget)
	assert.Equal(t, []string{"part_enrichment"}, cfg.Task.ExclusiveTypes)
}

// TestLoadFromEnv verifies that environment variables override defaults.
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STOCKROOM_AUTH_JWT_SECRET", testSecret)
	t.Setenv("STOCKROOM_SERVER_PORT", "9090")
	t.Setenv("STOCKROOM_SERVER_LOG_LEVEL", "debug")
	t.Setenv("STOCKROOM_TASK_WORKER_COUNT", "8")
	t.Setenv("STOCKROOM_TASK_ATTEMPT_TIMEOUT", "3s")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 8, cfg.Task.WorkerCount)
	assert.Equal(t, 3*time.Second, cfg.Task.AttemptTimeout)
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing jwt secret",
			env:  map[string]string{},
		},
		{
			name: "short jwt secret",
			env:  map[string]string{"STOCKROOM_AUTH_JWT_SECRET": "short"},
		},
		{
			name: "invalid log level",
			env: map[string]string{
				"STOCKROOM_AUTH_JWT_SECRET":  testSecret,
				"STOCKROOM_SERVER_LOG_LEVEL": "verbose",
			},
		},
		{
			name: "redis store without url",
			env: map[string]string{
				"STOCKROOM_AUTH_JWT_SECRET": testSecret,
				"STOCKROOM_RATE_LIMIT_STORE": "redis",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STOCKROOM_AUTH_JWT_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
