// Package config loads and validates the daemon configuration from a
// YAML file plus MBWATCH_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sileric/mbwatch/internal/notify"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Scope    ScopeConfig    `mapstructure:"scope"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Items    ItemsConfig    `mapstructure:"items"`
	Status   StatusConfig   `mapstructure:"status"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Notify   notify.Config  `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelaySec int    `mapstructure:"retry_delay_sec"`
}

type FeedConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	ListingsAdd    bool   `mapstructure:"listings_add"`
	ListingsRemove bool   `mapstructure:"listings_remove"`
	SalesAdd       bool   `mapstructure:"sales_add"`
}

type ScopeConfig struct {
	Mode         string   `mapstructure:"mode"`
	DefaultScope string   `mapstructure:"default_scope"`
	Worlds       []string `mapstructure:"worlds"`
	DataCenters  []string `mapstructure:"datacenters"`
	Regions      []string `mapstructure:"regions"`
}

type CacheConfig struct {
	MaxPrices     int `mapstructure:"max_prices"`
	StaleAfterMin int `mapstructure:"stale_after_min"`
}

type BackfillConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	BatchDelayMS    int `mapstructure:"batch_delay_ms"`
	ListingLimit    int `mapstructure:"listing_limit"`
	RefreshEveryMin int `mapstructure:"refresh_every_min"`
}

type ItemsConfig struct {
	WatchFile string `mapstructure:"watch_file"`
	Watch     []int  `mapstructure:"watch"`

	// TradableFile, when set, restricts backfill candidates to the ids
	// listed in it.
	TradableFile string `mapstructure:"tradable_file"`
}

type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("api.base_url", "https://universalis.app")
	v.SetDefault("api.rate_per_second", 8)
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("api.retry_delay_sec", 2)
	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.endpoint", "wss://universalis.app/api/ws")
	v.SetDefault("feed.listings_add", true)
	v.SetDefault("feed.listings_remove", false)
	v.SetDefault("feed.sales_add", true)
	v.SetDefault("scope.mode", "all")
	v.SetDefault("cache.max_prices", 10)
	v.SetDefault("cache.stale_after_min", 10)
	v.SetDefault("backfill.batch_size", 100)
	v.SetDefault("backfill.batch_delay_ms", 200)
	v.SetDefault("backfill.listing_limit", 10)
	v.SetDefault("backfill.refresh_every_min", 60)
	v.SetDefault("status.enabled", true)
	v.SetDefault("status.addr", "127.0.0.1:9185")
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.path", "data/listings.json.gz")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server_url", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("MBWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Derived accessors; durations live in the config file as plain integers.

func (c *APIConfig) Timeout() time.Duration    { return time.Duration(c.TimeoutSec) * time.Second }
func (c *APIConfig) RetryDelay() time.Duration { return time.Duration(c.RetryDelaySec) * time.Second }

func (c *CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}

func (c *BackfillConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

func (c *BackfillConfig) RefreshEvery() time.Duration {
	return time.Duration(c.RefreshEveryMin) * time.Minute
}
