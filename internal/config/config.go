package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries every runtime knob, loaded from the environment with the
// documented defaults.
type Config struct {
	WorkerCount           int
	RateLimitDelay        time.Duration
	MaxConcurrentRequests int

	MaxCrawlDepth int
	MaxCrawlPages int

	HTTPTimeout  time.Duration
	MaxBodyBytes int64
	UserAgent    string

	ListenPort  int
	MetricsPort int

	StorageDriver string
	StorageDSN    string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("WORKER_COUNT", 5)
	v.SetDefault("RATE_LIMIT_DELAY_MS", 500)
	v.SetDefault("MAX_CONCURRENT_REQUESTS", 10)
	v.SetDefault("MAX_CRAWL_DEPTH", 3)
	v.SetDefault("MAX_CRAWL_PAGES", 20)
	v.SetDefault("HTTP_TIMEOUT_MS", 10_000)
	v.SetDefault("HTTP_MAX_BODY_BYTES", 2<<20)
	v.SetDefault("USER_AGENT", "SecureScan-Worker/1.0")
	v.SetDefault("LISTEN_PORT", 5000)
	v.SetDefault("METRICS_PORT", 9090)
	v.SetDefault("STORAGE_DRIVER", "sqlite")
	v.SetDefault("STORAGE_DSN", "securescan.db")

	cfg := &Config{
		WorkerCount:           v.GetInt("WORKER_COUNT"),
		RateLimitDelay:        time.Duration(v.GetInt("RATE_LIMIT_DELAY_MS")) * time.Millisecond,
		MaxConcurrentRequests: v.GetInt("MAX_CONCURRENT_REQUESTS"),
		MaxCrawlDepth:         v.GetInt("MAX_CRAWL_DEPTH"),
		MaxCrawlPages:         v.GetInt("MAX_CRAWL_PAGES"),
		HTTPTimeout:           time.Duration(v.GetInt("HTTP_TIMEOUT_MS")) * time.Millisecond,
		MaxBodyBytes:          v.GetInt64("HTTP_MAX_BODY_BYTES"),
		UserAgent:             v.GetString("USER_AGENT"),
		ListenPort:            v.GetInt("LISTEN_PORT"),
		MetricsPort:           v.GetInt("METRICS_PORT"),
		StorageDriver:         v.GetString("STORAGE_DRIVER"),
		StorageDSN:            v.GetString("STORAGE_DSN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrentRequests)
	}
	if c.MaxCrawlDepth < 0 {
		return fmt.Errorf("MAX_CRAWL_DEPTH must not be negative, got %d", c.MaxCrawlDepth)
	}
	if c.MaxCrawlPages < 0 {
		return fmt.Errorf("MAX_CRAWL_PAGES must not be negative, got %d", c.MaxCrawlPages)
	}
	switch c.StorageDriver {
	case "sqlite", "postgres", "json":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}
