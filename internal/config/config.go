// Package config handles configuration loading from a YAML file and
// environment variables. Environment variables win over the file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port
	HTTPPort int

	// Public base URL used in notification links
	PublicBaseURL string

	// Directory for uploaded workbooks
	UploadDir string

	// Directory for generated dashboard artifacts
	OutputDir string

	// Maximum accepted upload size in bytes
	MaxUploadBytes int64

	// Command line that launches the analysis engine subprocess
	EngineCommand []string

	// Events appended between durable snapshot writes
	SnapshotEvery int

	// Idle time after which a restored running job is marked errored
	StaleAfter time.Duration

	// How often the staleness reconciler runs
	ReconcileInterval time.Duration

	// Requests per second allowed per owner, 0 disables limiting
	RateLimit float64
	RateBurst int

	// SendGrid credentials; empty key disables email notifications
	SendGridAPIKey string
	FromEmail      string

	// OTLP collector endpoint for traces
	OTELEndpoint string
}

// Load reads configuration from the optional YAML file at path, then
// overlays environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 6161)
	v.SetDefault("public_base_url", "http://localhost:6161")
	v.SetDefault("upload_dir", "data/uploads")
	v.SetDefault("output_dir", "data/dashboards")
	v.SetDefault("max_upload_bytes", int64(50<<20))
	v.SetDefault("engine_command", []string{"sheetsight-engine"})
	v.SetDefault("snapshot_every", 10)
	v.SetDefault("stale_after", "30m")
	v.SetDefault("reconcile_interval", "1m")
	v.SetDefault("rate_limit", 5.0)
	v.SetDefault("rate_burst", 10)
	v.SetDefault("from_email", "noreply@sheetsight.local")
	v.SetDefault("otel_endpoint", "localhost:4317")

	v.BindEnv("database_url", "DATABASE_URL")
	v.BindEnv("http_port", "PORT")
	v.BindEnv("public_base_url", "PUBLIC_BASE_URL")
	v.BindEnv("upload_dir", "UPLOAD_DIR")
	v.BindEnv("output_dir", "OUTPUT_DIR")
	v.BindEnv("max_upload_bytes", "MAX_UPLOAD_BYTES")
	v.BindEnv("engine_command", "ENGINE_COMMAND")
	v.BindEnv("snapshot_every", "SNAPSHOT_EVERY")
	v.BindEnv("stale_after", "STALE_AFTER")
	v.BindEnv("reconcile_interval", "RECONCILE_INTERVAL")
	v.BindEnv("rate_limit", "RATE_LIMIT")
	v.BindEnv("rate_burst", "RATE_BURST")
	v.BindEnv("sendgrid_api_key", "SENDGRID_API_KEY")
	v.BindEnv("from_email", "FROM_EMAIL")
	v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:    v.GetString("database_url"),
		HTTPPort:       v.GetInt("http_port"),
		PublicBaseURL:  v.GetString("public_base_url"),
		UploadDir:      v.GetString("upload_dir"),
		OutputDir:      v.GetString("output_dir"),
		MaxUploadBytes: v.GetInt64("max_upload_bytes"),
		EngineCommand:  v.GetStringSlice("engine_command"),
		SnapshotEvery:  v.GetInt("snapshot_every"),
		RateLimit:      v.GetFloat64("rate_limit"),
		RateBurst:      v.GetInt("rate_burst"),
		SendGridAPIKey: v.GetString("sendgrid_api_key"),
		FromEmail:      v.GetString("from_email"),
		OTELEndpoint:   v.GetString("otel_endpoint"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	var err error
	cfg.StaleAfter, err = time.ParseDuration(v.GetString("stale_after"))
	if err != nil {
		return nil, fmt.Errorf("invalid stale_after: %w", err)
	}
	cfg.ReconcileInterval, err = time.ParseDuration(v.GetString("reconcile_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile_interval: %w", err)
	}

	if len(cfg.EngineCommand) == 0 {
		return nil, fmt.Errorf("engine_command must not be empty")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("max_upload_bytes must be positive")
	}

	return cfg, nil
}
