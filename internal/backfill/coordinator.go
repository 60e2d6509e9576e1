// Package backfill is the pull side of cache reconciliation: it finds
// stale or missing (item, world) pairs for the configured scope, fetches
// authoritative snapshots in rate-limited batches, and folds them into
// the cache.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/api"
	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/scope"
)

const (
	// DefaultBatchDelay paces consecutive full-size batches to stay
	// under the upstream rate limit. No delay after a partial batch.
	DefaultBatchDelay = 200 * time.Millisecond

	// DefaultListingLimit is the per-item listings depth requested.
	DefaultListingLimit = 10
)

// ErrAlreadyRunning is returned when a pass is requested while one is in
// flight. A coordinator runs at most one pass at a time.
var ErrAlreadyRunning = errors.New("backfill pass already running")

// ItemSource supplies the current set of item ids worth mirroring,
// typically an inventory snapshot.
type ItemSource interface {
	ItemIDs() []int
}

// Options tune a coordinator. Zero values pick the defaults.
type Options struct {
	BatchSize    int
	BatchDelay   time.Duration
	ListingLimit int

	// Tradable, when non-empty, restricts candidates to this set.
	Tradable []int
}

// Result summarizes one pass for logs and notifications.
type Result struct {
	Labels        int
	Requested     int
	Replaced      int
	FailedBatches int
	Errors        []string
	Duration      time.Duration
}

type Coordinator struct {
	client    api.Client
	cache     *cache.Listings
	dir       scope.Directory
	source    ItemSource
	selection scope.Selection
	logger    *zap.Logger

	batchSize    int
	batchDelay   time.Duration
	listingLimit int
	tradable     map[int]struct{}

	// Guards the one-pass-at-a-time invariant; written by whichever
	// goroutine ran the pass.
	running atomic.Bool
}

func NewCoordinator(client api.Client, listings *cache.Listings, dir scope.Directory, source ItemSource, selection scope.Selection, opts Options, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		client:       client,
		cache:        listings,
		dir:          dir,
		source:       source,
		selection:    selection,
		logger:       logger,
		batchSize:    opts.BatchSize,
		batchDelay:   opts.BatchDelay,
		listingLimit: opts.ListingLimit,
	}
	if c.batchSize <= 0 || c.batchSize > api.MaxItemsPerRequest {
		c.batchSize = api.MaxItemsPerRequest
	}
	if c.batchDelay <= 0 {
		c.batchDelay = DefaultBatchDelay
	}
	if c.listingLimit <= 0 {
		c.listingLimit = DefaultListingLimit
	}
	if len(opts.Tradable) > 0 {
		c.tradable = make(map[int]struct{}, len(opts.Tradable))
		for _, id := range opts.Tradable {
			c.tradable[id] = struct{}{}
		}
	}
	return c
}

// Running reports whether a pass is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run executes one full pass over the configured scope. Fetch errors are
// logged and counted but do not abort the pass; cancellation stops at
// the next label or batch boundary and returns ctx's error. A cancelled
// pass leaves the cache partially refreshed; fresh entries are skipped
// next time.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	start := time.Now()
	res := &Result{}

	candidates := c.candidates()
	if len(candidates) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	resolved := scope.Resolve(c.selection, c.dir)
	for _, r := range resolved {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		if len(r.WorldIDs) == 0 {
			c.logger.Warn("scope label resolved to no worlds, skipping",
				zap.String("label", r.Label))
			continue
		}
		res.Labels++

		items := c.staleAcrossWorlds(candidates, r.WorldIDs)
		if len(items) == 0 {
			continue
		}

		if err := c.fetchAndFold(ctx, r.Label, items, r.WorldIDs, res); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
	}

	res.Duration = time.Since(start)
	c.logger.Info("backfill pass finished",
		zap.Int("labels", res.Labels),
		zap.Int("requested", res.Requested),
		zap.Int("replaced", res.Replaced),
		zap.Int("failedBatches", res.FailedBatches),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// RunItems refreshes an explicit item list on a single world, outside
// the scope-driven pass. Used for ad-hoc refresh requests.
func (c *Coordinator) RunItems(ctx context.Context, itemIDs []int, worldID int) (*Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	start := time.Now()
	res := &Result{}

	label, ok := c.dir.WorldName(worldID)
	if !ok {
		return nil, fmt.Errorf("unknown world id %d", worldID)
	}
	res.Labels = 1

	items := dedupe(itemIDs)
	if len(items) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	err := c.fetchAndFold(ctx, label, items, []int{worldID}, res)
	res.Duration = time.Since(start)
	return res, err
}

// candidates reads the item source, applies the tradable filter, and
// collapses duplicates while preserving order.
func (c *Coordinator) candidates() []int {
	ids := c.source.ItemIDs()
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		if c.tradable != nil {
			if _, ok := c.tradable[id]; !ok {
				continue
			}
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// staleAcrossWorlds unions the per-world stale/missing sets for a label
// into one fetch list: one labeled request satisfies every member world.
func (c *Coordinator) staleAcrossWorlds(candidates []int, worldIDs []int) []int {
	needed := make(map[int]struct{})
	for _, world := range worldIDs {
		for _, id := range c.cache.StaleOrMissing(candidates, world) {
			needed[id] = struct{}{}
		}
	}
	out := make([]int, 0, len(needed))
	for _, id := range candidates {
		if _, ok := needed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// fetchAndFold chunks the item list, fetches each batch, and replaces
// the cache entries for every world sharing the label. Cancellation is
// checked per batch; an in-flight request is allowed to finish so a
// round trip already paid for is not discarded.
func (c *Coordinator) fetchAndFold(ctx context.Context, label string, items []int, worldIDs []int, res *Result) error {
	batches := chunk(items, c.batchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Requested += len(batch)

		resp, err := c.client.MarketData(ctx, label, batch, c.listingLimit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.FailedBatches++
			res.Errors = append(res.Errors, fmt.Sprintf("%s batch %d: %v", label, i, err))
			c.logger.Warn("backfill batch failed",
				zap.String("label", label), zap.Int("batch", i), zap.Error(err))
			continue
		}

		res.Replaced += c.fold(resp, worldIDs)

		if len(batch) == c.batchSize && i+1 < len(batches) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.batchDelay):
			}
		}
	}
	return nil
}

// fold writes one response into the cache for every world the label
// covers. Returns how many items were folded.
func (c *Coordinator) fold(resp *api.MarketResponse, worldIDs []int) int {
	folded := 0
	for key, item := range resp.Items {
		itemID := item.ItemID
		if itemID == 0 {
			parsed, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			itemID = parsed
		}

		nq, hq := splitPrices(item)
		for _, world := range worldIDs {
			c.cache.ReplaceFromPull(itemID, world, nq, hq)
		}
		folded++
	}
	return folded
}

// splitPrices separates a response item's listings by quality tier,
// falling back to the single min-price fields when the service returned
// no listings.
func splitPrices(item api.MarketItem) (nq, hq []int) {
	for _, l := range item.Listings {
		if l.PricePerUnit <= 0 {
			continue
		}
		if l.HQ {
			hq = append(hq, l.PricePerUnit)
		} else {
			nq = append(nq, l.PricePerUnit)
		}
	}
	if len(nq) == 0 && len(hq) == 0 {
		if item.MinPriceNQ > 0 {
			nq = []int{item.MinPriceNQ}
		}
		if item.MinPriceHQ > 0 {
			hq = []int{item.MinPriceHQ}
		}
	}
	return nq, hq
}

func dedupe(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []int, size int) [][]int {
	var out [][]int
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
