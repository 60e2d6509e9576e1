package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/snapshot"
)

func backfillCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run a single backfill pass and exit",
		Long: `Run one pull pass over the configured watch list and scope, then
exit. With --save the fetched listings are written to the snapshot file
so the next daemon start begins warm.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := newAPIClient()
			dir, sel, err := loadScope(ctx, client)
			if err != nil {
				return err
			}
			source, err := newItemSource()
			if err != nil {
				return err
			}

			tradable, err := loadTradable()
			if err != nil {
				return err
			}

			listings := cache.NewListings(cfg.Cache.MaxPrices, cfg.Cache.StaleAfter())
			coordinator := newCoordinator(client, listings, dir, source, sel, tradable)

			result, err := coordinator.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Labels:         %d\n", result.Labels)
			fmt.Printf("Requested:      %d items\n", result.Requested)
			fmt.Printf("Replaced:       %d entries\n", result.Replaced)
			fmt.Printf("Failed batches: %d\n", result.FailedBatches)
			fmt.Printf("Duration:       %s\n", result.Duration.Round(time.Millisecond))
			for _, e := range result.Errors {
				fmt.Printf("  error: %s\n", e)
			}

			if save && cfg.Snapshot.Enabled {
				store := snapshot.NewStore(cfg.Snapshot.Path, logger)
				if err := store.Save(listings.Snapshot()); err != nil {
					return err
				}
				logger.Info("snapshot saved", zap.String("path", cfg.Snapshot.Path))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "write fetched listings to the snapshot file")
	return cmd
}
