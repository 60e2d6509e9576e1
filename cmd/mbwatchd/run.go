package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/backfill"
	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/feed"
	"github.com/sileric/mbwatch/internal/notify"
	"github.com/sileric/mbwatch/internal/scope"
	"github.com/sileric/mbwatch/internal/snapshot"
	"github.com/sileric/mbwatch/internal/status"
)

const shutdownTimeout = 5 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the price mirror daemon",
		Long: `Run the price mirror daemon: connect to the live feed, keep the
listings cache current, refresh stale entries over the pull API on a
schedule, and serve the local status endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(ctx context.Context) error {
	defer func() { _ = logger.Sync() }()

	client := newAPIClient()
	dir, sel, err := loadScope(ctx, client)
	if err != nil {
		return err
	}
	logger.Info("scope resolved",
		zap.String("mode", sel.Mode.String()),
		zap.Int("labels", len(scope.Resolve(sel, dir))),
		zap.Int("worlds", dir.Worlds()),
	)

	source, err := newItemSource()
	if err != nil {
		return err
	}

	listings := cache.NewListings(cfg.Cache.MaxPrices, cfg.Cache.StaleAfter())

	// Warm the cache from the last snapshot. Restored entries keep
	// their saved timestamps, so stale ones get refreshed right away.
	var store *snapshot.Store
	if cfg.Snapshot.Enabled {
		store = snapshot.NewStore(cfg.Snapshot.Path, logger)
		entries, err := store.Load()
		if err != nil {
			logger.Warn("snapshot load failed, starting cold", zap.Error(err))
		} else if len(entries) > 0 {
			listings.Restore(entries)
			logger.Info("cache restored from snapshot", zap.Int("entries", len(entries)))
		}
	}

	tradable, err := loadTradable()
	if err != nil {
		return err
	}

	notifier := notify.NewClient(&cfg.Notify, logger)
	coordinator := newCoordinator(client, listings, dir, source, sel, tradable)

	settings := feed.Settings{
		Enabled:        cfg.Feed.Enabled,
		Endpoint:       cfg.Feed.Endpoint,
		ListingsAdd:    cfg.Feed.ListingsAdd,
		ListingsRemove: cfg.Feed.ListingsRemove,
		SalesAdd:       cfg.Feed.SalesAdd,
	}
	session := feed.NewSession(settings, listings, feed.Hooks{
		ConnectionState: func(connected bool) {
			if connected {
				return
			}
			go func() {
				if err := notifier.ConnectionLost(context.Background()); err != nil {
					logger.Warn("connection alert failed", zap.Error(err))
				}
			}()
		},
	}, logger)
	defer session.Close()

	if cfg.Feed.Enabled {
		for _, ch := range feed.ChannelsFor(settings, scope.Resolve(sel, dir)) {
			session.Subscribe(ch)
		}
		if err := session.Start(); err != nil {
			return err
		}
	}

	var statusServer *http.Server
	if cfg.Status.Enabled {
		handler := status.NewRouter(status.NewServer(listings, session, coordinator, dir, logger), logger)
		statusServer = &http.Server{Addr: cfg.Status.Addr, Handler: handler}
		go func() {
			logger.Info("status server listening", zap.String("addr", cfg.Status.Addr))
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
	}

	// Startup pass fills gaps the feed cannot cover, then the ticker
	// keeps stale entries refreshed.
	runPass := func() {
		result, err := coordinator.Run(ctx)
		if err != nil {
			if errors.Is(err, backfill.ErrAlreadyRunning) || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("backfill pass failed", zap.Error(err))
			return
		}
		logger.Info("backfill pass finished",
			zap.Int("requested", result.Requested),
			zap.Int("replaced", result.Replaced),
			zap.Int("failedBatches", result.FailedBatches),
			zap.Duration("duration", result.Duration),
		)
		if err := notifier.BackfillFinished(ctx, result); err != nil {
			logger.Warn("backfill notification failed", zap.Error(err))
		}
	}
	go runPass()

	ticker := time.NewTicker(cfg.Backfill.RefreshEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return shutdown(statusServer, session, store, listings)

		case <-ticker.C:
			go runPass()
		}
	}
}

func shutdown(statusServer *http.Server, session *feed.Session, store *snapshot.Store, listings *cache.Listings) error {
	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}

	session.Close()

	if store != nil {
		if err := store.Save(listings.Snapshot()); err != nil {
			logger.Error("snapshot save failed", zap.Error(err))
			return err
		}
		logger.Info("snapshot saved")
	}
	return nil
}
