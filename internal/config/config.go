// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required")
	ErrRedisAddrRequired   = errors.New("config: REDIS_ADDR is required")
)

// Config holds all configuration for the API and worker processes.
type Config struct {
	// Server settings
	Port            int           `env:"PORT, default=8080" json:"port"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=30s" json:"shutdown_timeout"`

	// Database settings
	DatabaseURL string `env:"DATABASE_URL, required" json:"-"` // Masked in JSON

	// Redis settings
	RedisAddr     string `env:"REDIS_ADDR, required" json:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`
	PollQueueKey  string `env:"POLL_QUEUE_KEY, default=forge:poll" json:"poll_queue_key"`

	// Renderer settings
	RendererURL          string        `env:"RENDERER_URL, default=http://127.0.0.1:8188" json:"renderer_url"`
	RendererPollInterval time.Duration `env:"RENDERER_POLL_INTERVAL, default=2s" json:"renderer_poll_interval"`
	RendererPollTimeout  time.Duration `env:"RENDERER_POLL_TIMEOUT, default=30m" json:"renderer_poll_timeout"`

	// Template settings
	TemplateDir string `env:"TEMPLATE_DIR, default=./templates" json:"template_dir"`

	// Storage settings
	StorageProvider string `env:"STORAGE_PROVIDER, default=localfs" json:"storage_provider"` // "localfs" or "s3"
	LocalFSRoot     string `env:"LOCALFS_ROOT, default=./data" json:"localfs_root"`
	LocalFSBaseURL  string `env:"LOCALFS_BASE_URL, default=http://localhost:8080/files" json:"localfs_base_url"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3ForcePathStyle   bool   `env:"S3_FORCE_PATH_STYLE" json:"s3_force_path_style,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	SignedURLTTL       time.Duration `env:"SIGNED_URL_TTL, default=15m" json:"signed_url_ttl"`

	// Google Drive archive settings
	DriveClientID     string `env:"DRIVE_CLIENT_ID" json:"-"`
	DriveClientSecret string `env:"DRIVE_CLIENT_SECRET" json:"-"`
	DriveRefreshToken string `env:"DRIVE_REFRESH_TOKEN" json:"-"`
	DriveRootFolderID string `env:"DRIVE_ROOT_FOLDER_ID" json:"drive_root_folder_id,omitempty"`

	// Thumbnail settings
	FFmpegPath       string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	ThumbnailTimeout time.Duration `env:"THUMBNAIL_TIMEOUT, default=30s" json:"thumbnail_timeout"`

	// Feed cache settings
	FeedCacheTTL     time.Duration `env:"FEED_CACHE_TTL, default=10s" json:"feed_cache_ttl"`
	FeedCacheEntries int           `env:"FEED_CACHE_ENTRIES, default=100" json:"feed_cache_entries"`

	// Worker settings
	WorkerConcurrency int `env:"WORKER_CONCURRENCY, default=4" json:"worker_concurrency"`

	// CORS settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=json" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// DriveEnabled returns true if Google Drive archive credentials are provided.
func (c *Config) DriveEnabled() bool {
	return c.DriveClientID != "" && c.DriveClientSecret != "" && c.DriveRefreshToken != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(ctx, cfg); err != nil {
		if strings.Contains(err.Error(), "DATABASE_URL") {
			return nil, ErrDatabaseURLRequired
		}
		if strings.Contains(err.Error(), "REDIS_ADDR") {
			return nil, ErrRedisAddrRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	if c.RedisAddr == "" {
		return ErrRedisAddrRequired
	}
	switch c.StorageProvider {
	case "localfs":
	case "s3":
		if !c.S3Enabled() {
			return errors.New("config: STORAGE_PROVIDER=s3 requires S3_BUCKET and S3_REGION")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_PROVIDER %q", c.StorageProvider)
	}
	return nil
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, RedisAddr: %s, RendererURL: %s, TemplateDir: %s, StorageProvider: %s, S3Bucket: %s, DriveEnabled: %t, FeedCacheTTL: %s, WorkerConcurrency: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.RedisAddr,
		c.RendererURL,
		c.TemplateDir,
		c.StorageProvider,
		c.S3Bucket,
		c.DriveEnabled(),
		c.FeedCacheTTL,
		c.WorkerConcurrency,
		c.LogFormat,
		c.LogLevel,
	)
}
