package config

import (
	"fmt"
	"strings"

	"github.com/sileric/mbwatch/internal/scope"
)

// ValidationErrors collects every problem found in one pass so the
// operator fixes the file once, not field by field.
type ValidationErrors struct {
	Problems []string
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationErrors) HasErrors() bool {
	return len(e.Problems) > 0
}

func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, p := range e.Problems {
		sb.WriteString("  - " + p + "\n")
	}
	return sb.String()
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.API.BaseURL == "" {
		errs.add("api.base_url is required")
	}
	if c.API.RatePerSecond < 1 {
		errs.add("api.rate_per_second must be >= 1")
	}
	if c.API.RetryCount < 0 {
		errs.add("api.retry_count must be >= 0")
	}

	if c.Feed.Enabled {
		if c.Feed.Endpoint == "" {
			errs.add("feed.endpoint is required when the feed is enabled")
		} else if !strings.HasPrefix(c.Feed.Endpoint, "ws://") && !strings.HasPrefix(c.Feed.Endpoint, "wss://") {
			errs.add("feed.endpoint must be a ws:// or wss:// URL, got %q", c.Feed.Endpoint)
		}
		if !c.Feed.ListingsAdd && !c.Feed.ListingsRemove && !c.Feed.SalesAdd {
			errs.add("feed is enabled but every channel is disabled")
		}
	}

	mode, err := scope.ParseMode(c.Scope.Mode)
	if err != nil {
		errs.add("scope.mode: %v", err)
	} else {
		switch mode {
		case scope.ModeWorld:
			if len(c.Scope.Worlds) == 0 {
				errs.add("scope.worlds is required for world mode")
			}
		case scope.ModeDataCenter:
			if len(c.Scope.DataCenters) == 0 {
				errs.add("scope.datacenters is required for datacenter mode")
			}
		case scope.ModeRegion:
			if len(c.Scope.Regions) == 0 {
				errs.add("scope.regions is required for region mode")
			}
		}
	}

	if c.Cache.MaxPrices < 1 {
		errs.add("cache.max_prices must be >= 1")
	}
	if c.Cache.StaleAfterMin < 1 {
		errs.add("cache.stale_after_min must be >= 1")
	}

	if c.Backfill.BatchSize < 1 || c.Backfill.BatchSize > 100 {
		errs.add("backfill.batch_size must be between 1 and 100, got %d", c.Backfill.BatchSize)
	}
	if c.Backfill.BatchDelayMS < 0 {
		errs.add("backfill.batch_delay_ms must be >= 0")
	}
	if c.Backfill.ListingLimit < 1 {
		errs.add("backfill.listing_limit must be >= 1")
	}

	if len(c.Items.Watch) == 0 && c.Items.WatchFile == "" {
		errs.add("items.watch or items.watch_file is required")
	}
	for _, id := range c.Items.Watch {
		if id <= 0 {
			errs.add("items.watch contains invalid item id %d", id)
		}
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		errs.add("status.addr is required when the status server is enabled")
	}
	if c.Snapshot.Enabled && c.Snapshot.Path == "" {
		errs.add("snapshot.path is required when snapshots are enabled")
	}
	if c.Notify.Enabled && c.Notify.Topic == "" {
		errs.add("notify.topic is required when notifications are enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs.add("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
