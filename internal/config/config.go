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
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Robots  RobotsConfig  `mapstructure:"robots"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// JobsConfig governs job creation limits and validation.
type JobsConfig struct {
	MaxPerUserPerHour      int `mapstructure:"max_per_user_per_hour"`
	ValidateTimeoutSeconds int `mapstructure:"validate_timeout_seconds"`
}

// CrawlerConfig governs the crawl engine.
type CrawlerConfig struct {
	UserAgent              string  `mapstructure:"user_agent"`
	PageTimeoutSeconds     int     `mapstructure:"page_timeout_seconds"`
	ResourceTimeoutSeconds int     `mapstructure:"resource_timeout_seconds"`
	PerHostRPS             float64 `mapstructure:"per_host_rps"`
}

// RobotsConfig bounds the robots.txt rule cache.
type RobotsConfig struct {
	CacheSize       int `mapstructure:"cache_size"`
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

// StorageConfig selects and configures blob persistence.
type StorageConfig struct {
	Provider             string `mapstructure:"provider"`
	GCSBucket            string `mapstructure:"gcs_bucket"`
	LocalDir             string `mapstructure:"local_dir"`
	RootPrefix           string `mapstructure:"root_prefix"`
	PresignExpiryMinutes int    `mapstructure:"presign_expiry_minutes"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig identifies the job queue topic and subscription.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("jobs.max_per_user_per_hour", 30)
	v.SetDefault("jobs.validate_timeout_seconds", 5)
	v.SetDefault("crawler.user_agent", "RecipeArchiverBot")
	v.SetDefault("crawler.page_timeout_seconds", 10)
	v.SetDefault("crawler.resource_timeout_seconds", 5)
	v.SetDefault("crawler.per_host_rps", 2)
	v.SetDefault("robots.cache_size", 512)
	v.SetDefault("robots.cache_ttl_minutes", 60)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.root_prefix", "crawled-content")
	v.SetDefault("storage.presign_expiry_minutes", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Jobs.MaxPerUserPerHour <= 0 {
		return fmt.Errorf("jobs.max_per_user_per_hour must be > 0")
	}
	if c.Crawler.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.page_timeout_seconds must be > 0")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// PageTimeout returns the per-page fetch timeout as a duration.
func (c CrawlerConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// ResourceTimeout returns the external-resource fetch timeout as a duration.
func (c CrawlerConfig) ResourceTimeout() time.Duration {
	return time.Duration(c.ResourceTimeoutSeconds) * time.Second
}

// CacheTTL returns the robots cache entry lifetime as a duration.
func (c RobotsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// PresignExpiry returns the presigned URL lifetime as a duration.
func (c StorageConfig) PresignExpiry() time.Duration {
	return time.Duration(c.PresignExpiryMinutes) * time.Minute
}
