// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs job admission and the crawl pipeline.
type CrawlerConfig struct {
	FetchConcurrency  int    `mapstructure:"fetch_concurrency"`
	PageBudget        int    `mapstructure:"page_budget"`
	JobTimeoutSec     int    `mapstructure:"job_timeout_seconds"`
	MaxConcurrentJobs int    `mapstructure:"max_concurrent_jobs"`
	UserAgent         string `mapstructure:"user_agent"`
	EventTopic        string `mapstructure:"event_topic"`
}

// HTTPConfig configures HTTP client retry behavior for page fetches.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// GeneratorConfig tunes digest generation and model rate limiting.
type GeneratorConfig struct {
	Model          string `mapstructure:"model"`
	BatchSize      int    `mapstructure:"batch_size"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	BackoffBaseSec int    `mapstructure:"backoff_base_seconds"`
	CallsPerPause  int    `mapstructure:"calls_per_pause"`
	PauseSec       int    `mapstructure:"pause_seconds"`
}

// StorageConfig selects where generated documents are written.
type StorageConfig struct {
	// Backend is one of gcs, local, memory.
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory job store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LLMSTXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.fetch_concurrency", 8)
	v.SetDefault("crawler.page_budget", 200)
	v.SetDefault("crawler.job_timeout_seconds", 1800)
	v.SetDefault("crawler.max_concurrent_jobs", 4)
	v.SetDefault("crawler.user_agent", "llmstxt-bot/0.1")
	v.SetDefault("crawler.event_topic", "crawl-events")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("generator.model", "gemini-2.5-flash-lite")
	v.SetDefault("generator.batch_size", 10)
	v.SetDefault("generator.max_attempts", 3)
	v.SetDefault("generator.backoff_base_seconds", 2)
	v.SetDefault("generator.calls_per_pause", 10)
	v.SetDefault("generator.pause_seconds", 80)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./documents")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.FetchConcurrency <= 0 {
		return fmt.Errorf("crawler.fetch_concurrency must be > 0")
	}
	if c.Crawler.PageBudget <= 0 {
		return fmt.Errorf("crawler.page_budget must be > 0")
	}
	if c.Crawler.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("crawler.max_concurrent_jobs must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Generator.BatchSize <= 0 {
		return fmt.Errorf("generator.batch_size must be > 0")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// JobTimeout returns the configured per-job wall clock budget.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Crawler.JobTimeoutSec) * time.Second
}

// FetchTimeout returns the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
