// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mohammadumar-dev/resumeagent/internal/db"
	"github.com/mohammadumar-dev/resumeagent/internal/execution"
	"github.com/mohammadumar-dev/resumeagent/internal/notify"
)

// Config holds every runtime setting. Values come from defaults, then an
// optional JSON file, then the environment.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"`
	APIKey      string `json:"api_key,omitempty"` // Gemini API key
	Port        int    `json:"port,omitempty"`
	LogMode     string `json:"log_mode,omitempty"` // "dev" or "prod"

	// Status notifications
	RedisAddr          string `json:"redis_addr,omitempty"` // empty disables notifications
	RedisChannelPrefix string `json:"redis_channel_prefix,omitempty"`

	// Retry policy for agent calls
	RetryMaxAttempts     int     `json:"retry_max_attempts,omitempty"`
	RetryInitialInterval string  `json:"retry_initial_interval,omitempty"`
	RetryMultiplier      float64 `json:"retry_multiplier,omitempty"`
	RetryMaxInterval     string  `json:"retry_max_interval,omitempty"`

	DefaultGenerationLimit int  `json:"default_generation_limit,omitempty"`
	OTelEnabled            bool `json:"otel_enabled,omitempty"`

	// Per-user request limits; zero disables the limit
	RateLimitSubmitPerHour int `json:"rate_limit_submit_per_hour,omitempty"`
	RateLimitPerMinute     int `json:"rate_limit_per_minute,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	p := execution.DefaultRetryPolicy()
	return Config{
		Port:                   8080,
		LogMode:                "dev",
		RedisChannelPrefix:     notify.DefaultChannelPrefix,
		RetryMaxAttempts:       p.MaxAttempts,
		RetryInitialInterval:   p.InitialInterval.String(),
		RetryMultiplier:        p.Multiplier,
		RetryMaxInterval:       p.MaxInterval.String(),
		DefaultGenerationLimit: db.DefaultGenerationLimit,
		RateLimitSubmitPerHour: 10,
		RateLimitPerMinute:     120,
	}
}

// Load builds the configuration from defaults, the JSON file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile overlays the non-empty fields of a JSON config file.
func (c *Config) mergeFile(path string) error {
	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.APIKey, "GEMINI_API_KEY")
	setString(&c.LogMode, "LOG_MODE")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisChannelPrefix, "REDIS_CHANNEL_PREFIX")
	setString(&c.RetryInitialInterval, "RETRY_INITIAL_INTERVAL")
	setString(&c.RetryMaxInterval, "RETRY_MAX_INTERVAL")

	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.RetryMaxAttempts, "RETRY_MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err := setInt(&c.DefaultGenerationLimit, "DEFAULT_GENERATION_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&c.RateLimitSubmitPerHour, "RATE_LIMIT_SUBMIT_PER_HOUR"); err != nil {
		return err
	}
	if err := setInt(&c.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE"); err != nil {
		return err
	}
	if v := os.Getenv("RETRY_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RETRY_MULTIPLIER: %v", err)
		}
		c.RetryMultiplier = f
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED: %v", err)
		}
		c.OTelEnabled = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %v", key, err)
	}
	*dst = n
	return nil
}

// Validate checks that the configuration has usable values. Settings only some
// commands need are checked by the Require methods.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: port must be between 1 and 65535, got %d", c.Port)
	}
	if c.LogMode != "dev" && c.LogMode != "prod" {
		return fmt.Errorf("config error: log mode must be \"dev\" or \"prod\", got %q", c.LogMode)
	}
	if c.DefaultGenerationLimit < 0 {
		return fmt.Errorf("config error: default generation limit must be non-negative")
	}
	if c.RateLimitSubmitPerHour < 0 || c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config error: rate limits must be non-negative")
	}
	if _, err := c.RetryPolicy(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() (execution.RetryPolicy, error) {
	initial, err := time.ParseDuration(c.RetryInitialInterval)
	if err != nil {
		return execution.RetryPolicy{}, fmt.Errorf("invalid retry initial interval: %w", err)
	}
	maxInterval, err := time.ParseDuration(c.RetryMaxInterval)
	if err != nil {
		return execution.RetryPolicy{}, fmt.Errorf("invalid retry max interval: %w", err)
	}
	p := execution.RetryPolicy{
		MaxAttempts:     c.RetryMaxAttempts,
		InitialInterval: initial,
		Multiplier:      c.RetryMultiplier,
		MaxInterval:     maxInterval,
	}
	if err := p.Validate(); err != nil {
		return execution.RetryPolicy{}, err
	}
	return p, nil
}

// RequireDatabase reports a missing DATABASE_URL.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	return nil
}

// RequireAPIKey reports a missing GEMINI_API_KEY.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required but not set")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
