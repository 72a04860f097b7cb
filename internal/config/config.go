// Package config provides configuration loading and validation for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the full service configuration. Every field can be set from
// the environment; zero values fall back to the documented defaults.
type Config struct {
	// Stores
	RedisURL    string // REDIS_URL, e.g. redis://localhost:6379/0
	DatabaseURL string // DATABASE_URL, PostgreSQL connection string

	// Auth
	APIBearerToken    string // API_BEARER_TOKEN, required for webhook intake
	AdminPasswordHash string // ADMIN_PASSWORD_HASH, bcrypt hash for operator login

	// Generation
	GeminiAPIKey       string        // GEMINI_API_KEY
	MaxConcurrentPages int           // MAX_CONCURRENT_PAGES (default 4)
	PageTimeout        time.Duration // PAGE_TIMEOUT_SECONDS (default 240s)
	MaxPageRetries     int           // MAX_PAGE_RETRIES (default 3)
	TransientRetries   int           // GEN_TRANSIENT_RETRIES (default 4)
	BaseBackoff        time.Duration // GEN_BASE_BACKOFF_MS (default 800ms)

	// Job state retention
	JobTTL             time.Duration // JOB_TTL_SECONDS (default 86400s)
	CompletedRetention time.Duration // COMPLETED_RETENTION_SECONDS (default 43200s)
	MonthlyLogKeep     time.Duration // MONTHLY_LOG_KEEP_SECONDS (default 1y)
	ArchiveLogLines    int           // ARCHIVE_LOG_LINES (default 200)

	// Worker
	JobTimeout     time.Duration // JOB_TIMEOUT_SECONDS (default 29m)
	WorkerJobs     int           // WORKER_CONCURRENT_JOBS (default 1)
	PollInterval   time.Duration // WORKER_POLL_INTERVAL (default 5s)
	SweepInterval  time.Duration // SWEEP_INTERVAL (default 60s)
	SweepSendLimit int           // SWEEP_SEND_LIMIT, max sends per sweep (default 20)

	// Delivery
	DeliveryMode            string // DELIVERY_MODE: manual | prefill | direct
	DeliveryBaseURLTemplate string // DELIVERY_BASE_URL_TEMPLATE, "{slug}" placeholder
	DeliveryTargetPath      string // DELIVERY_TARGET_PATH_TEMPLATE (default /wp-json/{namespace}/v1/content)
	DeliveryNamespace       string // DELIVERY_TARGET_NAMESPACE
	PreviewBaseDomain       string // PREVIEW_BASE_DOMAIN
	SiteCheckEnabled        bool   // SITE_CHECK_ENABLED (default false)

	// Site readiness backoff
	SiteCheckShortInterval time.Duration // SITE_CHECK_SHORT_INTERVAL (default 5m)
	SiteCheckLongInterval  time.Duration // SITE_CHECK_LONG_INTERVAL (default 60m)
	SiteCheckShortAttempts int           // SITE_CHECK_SHORT_ATTEMPTS (default 12)

	// Monthly archive
	AWSRegion         string // AWS_REGION (default us-east-2)
	S3Bucket          string // S3_BUCKET
	MonthlyLogsPrefix string // S3_MONTHLY_LOGS_PREFIX (default monthly-queue-logs/)
}

// Load builds a Config from the environment.
func Load() *Config {
	return &Config{
		RedisURL:    envStr("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		APIBearerToken:    os.Getenv("API_BEARER_TOKEN"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		MaxConcurrentPages: envInt("MAX_CONCURRENT_PAGES", 4),
		PageTimeout:        envSeconds("PAGE_TIMEOUT_SECONDS", 240),
		MaxPageRetries:     envInt("MAX_PAGE_RETRIES", 3),
		TransientRetries:   envInt("GEN_TRANSIENT_RETRIES", 4),
		BaseBackoff:        time.Duration(envInt("GEN_BASE_BACKOFF_MS", 800)) * time.Millisecond,

		JobTTL:             envSeconds("JOB_TTL_SECONDS", 86400),
		CompletedRetention: envSeconds("COMPLETED_RETENTION_SECONDS", 43200),
		MonthlyLogKeep:     envSeconds("MONTHLY_LOG_KEEP_SECONDS", 31536000),
		ArchiveLogLines:    envInt("ARCHIVE_LOG_LINES", 200),

		JobTimeout:     envSeconds("JOB_TIMEOUT_SECONDS", 29*60),
		WorkerJobs:     envInt("WORKER_CONCURRENT_JOBS", 1),
		PollInterval:   envSeconds("WORKER_POLL_INTERVAL", 5),
		SweepInterval:  envSeconds("SWEEP_INTERVAL", 60),
		SweepSendLimit: envInt("SWEEP_SEND_LIMIT", 20),

		DeliveryMode:            envStr("DELIVERY_MODE", "manual"),
		DeliveryBaseURLTemplate: os.Getenv("DELIVERY_BASE_URL_TEMPLATE"),
		DeliveryTargetPath:      envStr("DELIVERY_TARGET_PATH_TEMPLATE", "/wp-json/{namespace}/v1/content"),
		DeliveryNamespace:       os.Getenv("DELIVERY_TARGET_NAMESPACE"),
		PreviewBaseDomain:       envStr("PREVIEW_BASE_DOMAIN", "wp-premium-hosting.com"),
		SiteCheckEnabled:        envBool("SITE_CHECK_ENABLED", false),

		SiteCheckShortInterval: envSeconds("SITE_CHECK_SHORT_INTERVAL", 5*60),
		SiteCheckLongInterval:  envSeconds("SITE_CHECK_LONG_INTERVAL", 60*60),
		SiteCheckShortAttempts: envInt("SITE_CHECK_SHORT_ATTEMPTS", 12),

		AWSRegion:         envStr("AWS_REGION", "us-east-2"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		MonthlyLogsPrefix: envStr("S3_MONTHLY_LOGS_PREFIX", "monthly-queue-logs/"),
	}
}

// Validate checks that configuration required by every process is present.
// Components with extra requirements (e.g. the archive command needing an S3
// bucket) validate those at their own entry points.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("config error: REDIS_URL is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	if c.MaxConcurrentPages < 1 {
		return fmt.Errorf("config error: MAX_CONCURRENT_PAGES must be positive")
	}
	if c.MaxPageRetries < 1 {
		return fmt.Errorf("config error: MAX_PAGE_RETRIES must be positive")
	}
	switch c.DeliveryMode {
	case "manual", "prefill", "direct":
	default:
		return fmt.Errorf("config error: unknown DELIVERY_MODE %q", c.DeliveryMode)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
