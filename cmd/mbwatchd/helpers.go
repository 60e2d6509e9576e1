package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/api"
	"github.com/sileric/mbwatch/internal/backfill"
	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/inventory"
	"github.com/sileric/mbwatch/internal/scope"
	"github.com/sileric/mbwatch/internal/worlds"
)

func newAPIClient() *api.HTTPClient {
	return api.NewClient(
		cfg.API.BaseURL,
		cfg.API.RatePerSecond,
		cfg.API.Timeout(),
		cfg.API.RetryDelay(),
		cfg.API.RetryCount,
		logger,
	)
}

// loadScope fetches the world directory and turns the configured scope
// into a runtime selection.
func loadScope(ctx context.Context, client api.Client) (*worlds.Directory, scope.Selection, error) {
	dir, err := worlds.Load(ctx, client, logger)
	if err != nil {
		return nil, scope.Selection{}, fmt.Errorf("loading world directory: %w", err)
	}
	sel, err := cfg.Scope.Selection(dir)
	if err != nil {
		return nil, scope.Selection{}, err
	}
	return dir, sel, nil
}

// newItemSource builds the watch list. A configured file wins over the
// inline list so operators can manage large lists out of band.
func newItemSource() (backfill.ItemSource, error) {
	if cfg.Items.WatchFile != "" {
		src, err := inventory.NewFileSource(cfg.Items.WatchFile)
		if err != nil {
			return nil, fmt.Errorf("loading watch list: %w", err)
		}
		logger.Info("watch list loaded from file",
			zap.String("path", cfg.Items.WatchFile),
			zap.Int("items", len(src.ItemIDs())),
		)
		return src, nil
	}
	return inventory.NewStatic(cfg.Items.Watch), nil
}

// loadTradable reads the tradable-id set when one is configured. An
// empty result means no restriction.
func loadTradable() ([]int, error) {
	if cfg.Items.TradableFile == "" {
		return nil, nil
	}
	src, err := inventory.NewFileSource(cfg.Items.TradableFile)
	if err != nil {
		return nil, fmt.Errorf("loading tradable set: %w", err)
	}
	ids := src.ItemIDs()
	logger.Info("tradable set loaded",
		zap.String("path", cfg.Items.TradableFile),
		zap.Int("items", len(ids)),
	)
	return ids, nil
}

func newCoordinator(client api.Client, listings *cache.Listings, dir *worlds.Directory, source backfill.ItemSource, sel scope.Selection, tradable []int) *backfill.Coordinator {
	return backfill.NewCoordinator(client, listings, dir, source, sel, backfill.Options{
		BatchSize:    cfg.Backfill.BatchSize,
		BatchDelay:   cfg.Backfill.BatchDelay(),
		ListingLimit: cfg.Backfill.ListingLimit,
		Tradable:     tradable,
	}, logger)
}
