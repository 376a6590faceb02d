package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadumar-dev/resumeagent/internal/execution"
)

var envKeys = []string{
	"DATABASE_URL", "GEMINI_API_KEY", "PORT", "LOG_MODE", "REDIS_ADDR", "REDIS_CHANNEL_PREFIX",
	"RETRY_MAX_ATTEMPTS", "RETRY_INITIAL_INTERVAL", "RETRY_MULTIPLIER", "RETRY_MAX_INTERVAL",
	"DEFAULT_GENERATION_LIMIT", "OTEL_ENABLED", "RATE_LIMIT_SUBMIT_PER_HOUR", "RATE_LIMIT_PER_MINUTE",
}

// clearEnv blanks every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "dev", cfg.LogMode)
	assert.Equal(t, "resume-status", cfg.RedisChannelPrefix)
	assert.Equal(t, 5, cfg.DefaultGenerationLimit)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, 10, cfg.RateLimitSubmitPerHour)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)

	p, err := cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, execution.DefaultRetryPolicy(), p)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/resumes")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_MODE", "prod")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_INITIAL_INTERVAL", "500ms")
	t.Setenv("RETRY_MULTIPLIER", "3")
	t.Setenv("RETRY_MAX_INTERVAL", "10s")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/resumes", cfg.DatabaseURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.OTelEnabled)
	assert.NoError(t, cfg.RequireDatabase())
	assert.NoError(t, cfg.RequireAPIKey())

	p, err := cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, execution.RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      3,
		MaxInterval:     10 * time.Second,
	}, p)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	clearEnv(t)
	content := `{
		"database_url": "postgres://file/resumes",
		"port": 7000,
		"retry_max_attempts": 4
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("PORT", "7100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/resumes", cfg.DatabaseURL)
	assert.Equal(t, 7100, cfg.Port, "environment wins over the file")
	assert.Equal(t, 4, cfg.RetryMaxAttempts)
	assert.Equal(t, "2s", cfg.RetryInitialInterval, "unset file fields keep defaults")
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load("/nonexistent/path/config.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{ invalid json }`), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "port not a number", key: "PORT", value: "http", wantErr: "invalid PORT"},
		{name: "port out of range", key: "PORT", value: "70000", wantErr: "port must be between"},
		{name: "unknown log mode", key: "LOG_MODE", value: "verbose", wantErr: "log mode"},
		{name: "zero attempts", key: "RETRY_MAX_ATTEMPTS", value: "0", wantErr: "max attempts"},
		{name: "shrinking multiplier", key: "RETRY_MULTIPLIER", value: "0.5", wantErr: "multiplier"},
		{name: "bad duration", key: "RETRY_INITIAL_INTERVAL", value: "soon", wantErr: "initial interval"},
		{name: "max below initial", key: "RETRY_MAX_INTERVAL", value: "1s", wantErr: "smaller than initial"},
		{name: "bad bool", key: "OTEL_ENABLED", value: "maybe", wantErr: "invalid OTEL_ENABLED"},
		{name: "negative limit", key: "DEFAULT_GENERATION_LIMIT", value: "-2", wantErr: "generation limit"},
		{name: "negative rate limit", key: "RATE_LIMIT_PER_MINUTE", value: "-1", wantErr: "rate limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load("")
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequire(t *testing.T) {
	cfg := Default()
	assert.EqualError(t, cfg.RequireDatabase(), "DATABASE_URL is required but not set")
	assert.EqualError(t, cfg.RequireAPIKey(), "GEMINI_API_KEY is required but not set")
}
