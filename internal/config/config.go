// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrDatabaseURLRequired is returned when DATABASE_URL is not set.
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required")
	// ErrStorageBucketRequired is returned when STORAGE_BUCKET is not set.
	ErrStorageBucketRequired = errors.New("config: STORAGE_BUCKET is required")
)

// Config holds all configuration for the render worker.
type Config struct {
	// Database settings
	DatabaseURL string `env:"DATABASE_URL, required" json:"-"` // Masked in JSON

	// Storage settings
	StorageBucket    string `env:"STORAGE_BUCKET, required" json:"storage_bucket"`
	StorageRegion    string `env:"STORAGE_REGION, default=us-east-1" json:"storage_region"`
	StorageEndpoint  string `env:"STORAGE_ENDPOINT" json:"storage_endpoint,omitempty"` // S3-compatible endpoint (e.g. Supabase storage)
	CDNBaseURL       string `env:"CDN_BASE_URL" json:"cdn_base_url,omitempty"`
	CDNPurgeEndpoint string `env:"CDN_PURGE_ENDPOINT" json:"cdn_purge_endpoint,omitempty"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Worker loop settings. The *_MS variables carry integer millisecond
	// counts; the raw fields hold them until Load converts to durations.
	PollInterval        time.Duration `env:"WORKER_POLL_INTERVAL, default=2s" json:"poll_interval"`
	MaxConcurrentJobs   int           `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`
	ConfigRefresh       time.Duration `json:"config_refresh"`
	HeartbeatTimeout    time.Duration `json:"heartbeat_timeout"`
	RescueStuckRenders  bool          `env:"RESCUE_STUCK_RENDERS, default=true" json:"rescue_stuck_renders"`
	StuckRenderTimeout  time.Duration `json:"stuck_render_timeout"`
	StuckSweepInterval  time.Duration `json:"stuck_sweep_interval"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD, default=30s" json:"shutdown_grace_period"`

	ConfigRefreshRaw      string `env:"WORKER_CONFIG_REFRESH_MS, default=15000" json:"-"`
	HeartbeatTimeoutRaw   string `env:"HEARTBEAT_TIMEOUT_MS, default=60000" json:"-"`
	StuckRenderTimeoutRaw string `env:"RENDER_STUCK_TIMEOUT_MS, default=600000" json:"-"`
	StuckSweepIntervalRaw string `env:"RENDER_STUCK_SWEEP_INTERVAL_MS, default=60000" json:"-"`

	// Health server settings
	HealthPort int `env:"HEALTH_PORT, default=3001" json:"health_port"`

	// Browser settings
	UseRemoteBrowser bool   `env:"USE_STEEL, default=false" json:"use_remote_browser"`
	RemoteBrowserURL string `env:"REMOTE_BROWSER_URL" json:"remote_browser_url,omitempty"`

	// Cleanup settings
	CleanupEnabled        bool          `env:"CLEANUP_ENABLED, default=true" json:"cleanup_enabled"`
	SuccessRetentionHours int           `env:"SUCCESS_RENDER_RETENTION_HOURS, default=1" json:"success_retention_hours"`
	FailedRetentionDays   int           `env:"FAILED_RENDER_RETENTION_DAYS, default=7" json:"failed_retention_days"`
	CleanupMaxAgeDays     int           `env:"CLEANUP_MAX_AGE_DAYS, default=30" json:"cleanup_max_age_days"`
	CleanupInterval       time.Duration `env:"CLEANUP_INTERVAL, default=10m" json:"cleanup_interval"`

	// Working directory for render artifacts
	WorkDir string `env:"WORK_DIR, default=/tmp/renders" json:"work_dir"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "DATABASE_URL") {
			return nil, ErrDatabaseURLRequired
		}
		if strings.Contains(err.Error(), "STORAGE_BUCKET") {
			return nil, ErrStorageBucketRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	millis := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"WORKER_CONFIG_REFRESH_MS", cfg.ConfigRefreshRaw, &cfg.ConfigRefresh},
		{"HEARTBEAT_TIMEOUT_MS", cfg.HeartbeatTimeoutRaw, &cfg.HeartbeatTimeout},
		{"RENDER_STUCK_TIMEOUT_MS", cfg.StuckRenderTimeoutRaw, &cfg.StuckRenderTimeout},
		{"RENDER_STUCK_SWEEP_INTERVAL_MS", cfg.StuckSweepIntervalRaw, &cfg.StuckSweepInterval},
	}
	for _, m := range millis {
		d, err := parseMillis(m.raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", m.name, err)
		}
		*m.dst = d
	}

	return cfg, nil
}

// parseMillis reads a duration given as an integer millisecond count, the
// unit the *_MS variables carry. Duration strings like "60s" are accepted
// for hand-written configs.
func parseMillis(s string) (time.Duration, error) {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	return time.ParseDuration(strings.TrimSpace(s))
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	if c.StorageBucket == "" {
		return ErrStorageBucketRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{StorageBucket: %s, PollInterval: %s, MaxConcurrentJobs: %d, HealthPort: %d, UseRemoteBrowser: %t, WorkDir: %s, LogFormat: %s, LogLevel: %s}",
		c.StorageBucket,
		c.PollInterval,
		c.MaxConcurrentJobs,
		c.HealthPort,
		c.UseRemoteBrowser,
		c.WorkDir,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
