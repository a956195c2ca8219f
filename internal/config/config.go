// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrImentivAPIKeyRequired is returned when IMENTIV_API_KEY is not set.
	ErrImentivAPIKeyRequired = errors.New("config: IMENTIV_API_KEY is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Imentiv settings
	ImentivAPIKey  string `env:"IMENTIV_API_KEY, required" json:"-"` // Masked in JSON
	ImentivBaseURL string `env:"IMENTIV_BASE_URL, default=https://api.imentiv.ai/v1" json:"imentiv_base_url"`

	// Polling settings
	PollIntervalSec   int `env:"POLL_INTERVAL_SEC, default=5" json:"poll_interval_sec"`
	PollMaxWaitSec    int `env:"POLL_MAX_WAIT_SEC, default=600" json:"poll_max_wait_sec"`
	FrameWaitAttempts int `env:"FRAME_WAIT_ATTEMPTS, default=10" json:"frame_wait_attempts"`

	// Orchestration settings
	WorkerCount int    `env:"WORKER_COUNT, default=4" json:"worker_count"`
	ScratchDir  string `env:"SCRATCH_DIR, default=/tmp/coach" json:"scratch_dir"`

	// Persistence settings
	DatabasePath string `env:"DATABASE_PATH, default=coach.db" json:"database_path"`

	// Optional S3 settings; local storage is used when unset
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	LocalMediaDir      string `env:"LOCAL_MEDIA_DIR" json:"local_media_dir,omitempty"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// PollMaxWait returns the maximum poll wait as a duration.
func (c *Config) PollMaxWait() time.Duration {
	return time.Duration(c.PollMaxWaitSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "IMENTIV_API_KEY") {
			return nil, ErrImentivAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.ImentivAPIKey == "" {
		return ErrImentivAPIKeyRequired
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
		"Config{Port: %d, ImentivBaseURL: %s, PollIntervalSec: %d, PollMaxWaitSec: %d, WorkerCount: %d, DatabasePath: %s, ScratchDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ImentivBaseURL,
		c.PollIntervalSec,
		c.PollMaxWaitSec,
		c.WorkerCount,
		c.DatabasePath,
		c.ScratchDir,
		c.S3Bucket,
		c.S3Region,
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
