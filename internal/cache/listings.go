// Package cache holds the in-memory mirror of market listings keyed by
// (item, world). It is written from two sides, incremental push events
// from the live feed and wholesale replacements from backfill, and read
// by everything else.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Key identifies one item's market state on one world.
type Key struct {
	ItemID  int
	WorldID int
}

// Entry is a read-side snapshot of one cache entry. Price lists are
// ascending; the lowest price per quality tier is the head of its list.
type Entry struct {
	ItemID    int       `json:"itemID"`
	WorldID   int       `json:"worldID"`
	NQ        []int     `json:"nq"`
	HQ        []int     `json:"hq"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Lowest returns the cheapest price across both quality tiers, or 0 if
// the entry holds no prices.
func (e Entry) Lowest() int {
	switch {
	case len(e.NQ) > 0 && len(e.HQ) > 0:
		if e.NQ[0] < e.HQ[0] {
			return e.NQ[0]
		}
		return e.HQ[0]
	case len(e.NQ) > 0:
		return e.NQ[0]
	case len(e.HQ) > 0:
		return e.HQ[0]
	}
	return 0
}

// Stats summarizes cache contents for the status endpoint.
type Stats struct {
	Entries int `json:"entries"`
	Items   int `json:"items"`
	Fresh   int `json:"fresh"`
}

type entry struct {
	mu        sync.Mutex
	nq        []int
	hq        []int
	updatedAt time.Time
}

// Listings is the concurrent (item, world) → entry map. The outer lock
// guards map structure only; each entry carries its own lock so updates
// to distinct keys proceed in parallel.
type Listings struct {
	mu         sync.RWMutex
	entries    map[Key]*entry
	maxPrices  int
	staleAfter time.Duration

	now func() time.Time
}

// NewListings creates an empty cache. maxPrices caps each quality tier's
// retained price list; staleAfter is the freshness horizon.
func NewListings(maxPrices int, staleAfter time.Duration) *Listings {
	return &Listings{
		entries:    make(map[Key]*entry),
		maxPrices:  maxPrices,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (c *Listings) lookup(k Key, create bool) *entry {
	c.mu.RLock()
	e := c.entries[k]
	c.mu.RUnlock()
	if e != nil || !create {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e = c.entries[k]; e == nil {
		e = &entry{}
		c.entries[k] = e
	}
	return e
}

// UpdateFromPush folds one live listing price into the entry for
// (item, world). Push events are incremental deltas, so this inserts
// into the sorted list and truncates to the retained maximum rather than
// replacing. Non-positive prices are dropped. Reports whether the entry
// changed.
func (c *Listings) UpdateFromPush(itemID, worldID, price int, hq bool) bool {
	if price <= 0 {
		return false
	}
	e := c.lookup(Key{ItemID: itemID, WorldID: worldID}, true)

	e.mu.Lock()
	defer e.mu.Unlock()
	if hq {
		e.hq = insertCapped(e.hq, price, c.maxPrices)
	} else {
		e.nq = insertCapped(e.nq, price, c.maxPrices)
	}
	e.updatedAt = c.now()
	return true
}

// ReplaceFromPull overwrites both quality tiers with an authoritative
// snapshot from backfill. The lists are copied, sorted, and capped; the
// replacement is atomic with respect to concurrent updates on the same
// key.
func (c *Listings) ReplaceFromPull(itemID, worldID int, nq, hq []int) {
	e := c.lookup(Key{ItemID: itemID, WorldID: worldID}, true)

	sortedNQ := sortCapped(nq, c.maxPrices)
	sortedHQ := sortCapped(hq, c.maxPrices)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nq = sortedNQ
	e.hq = sortedHQ
	e.updatedAt = c.now()
}

// Get returns a snapshot of the entry for (item, world).
func (c *Listings) Get(itemID, worldID int) (Entry, bool) {
	e := c.lookup(Key{ItemID: itemID, WorldID: worldID}, false)
	if e == nil {
		return Entry{}, false
	}
	return e.snapshot(itemID, worldID), true
}

// LowestAcrossWorlds scans every world entry for the item and returns
// the one with the globally cheapest price in either quality tier.
// Ties go to the lowest world id so repeated queries are deterministic.
func (c *Listings) LowestAcrossWorlds(itemID int) (Entry, bool) {
	c.mu.RLock()
	keys := make([]Key, 0, 8)
	for k := range c.entries {
		if k.ItemID == itemID {
			keys = append(keys, k)
		}
	}
	c.mu.RUnlock()

	var best Entry
	found := false
	for _, k := range keys {
		e := c.lookup(k, false)
		if e == nil {
			continue
		}
		snap := e.snapshot(k.ItemID, k.WorldID)
		if snap.Lowest() == 0 {
			continue
		}
		if !found ||
			snap.Lowest() < best.Lowest() ||
			(snap.Lowest() == best.Lowest() && snap.WorldID < best.WorldID) {
			best = snap
			found = true
		}
	}
	return best, found
}

// IsFresh reports whether the entry exists and was updated within the
// staleness horizon.
func (c *Listings) IsFresh(itemID, worldID int) bool {
	e := c.lookup(Key{ItemID: itemID, WorldID: worldID}, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.now().Sub(e.updatedAt) < c.staleAfter
}

// StaleOrMissing filters itemIDs down to those with no fresh entry for
// the world, preserving input order.
func (c *Listings) StaleOrMissing(itemIDs []int, worldID int) []int {
	out := make([]int, 0, len(itemIDs))
	for _, id := range itemIDs {
		if !c.IsFresh(id, worldID) {
			out = append(out, id)
		}
	}
	return out
}

// Clear drops every entry.
func (c *Listings) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*entry)
}

// Stats counts entries, distinct items, and fresh entries.
func (c *Listings) Stats() Stats {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	items := make(map[int]struct{}, len(keys))
	s := Stats{Entries: len(keys)}
	for _, k := range keys {
		items[k.ItemID] = struct{}{}
		if c.IsFresh(k.ItemID, k.WorldID) {
			s.Fresh++
		}
	}
	s.Items = len(items)
	return s
}

// Snapshot returns a copy of every entry, for persistence.
func (c *Listings) Snapshot() []Entry {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e := c.lookup(k, false); e != nil {
			out = append(out, e.snapshot(k.ItemID, k.WorldID))
		}
	}
	return out
}

// Restore loads entries from a persisted snapshot, keeping each entry's
// recorded timestamp so staleness carries across restarts.
func (c *Listings) Restore(entries []Entry) {
	for _, snap := range entries {
		e := c.lookup(Key{ItemID: snap.ItemID, WorldID: snap.WorldID}, true)
		e.mu.Lock()
		e.nq = sortCapped(snap.NQ, c.maxPrices)
		e.hq = sortCapped(snap.HQ, c.maxPrices)
		e.updatedAt = snap.UpdatedAt
		e.mu.Unlock()
	}
}

func (e *entry) snapshot(itemID, worldID int) Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Entry{
		ItemID:    itemID,
		WorldID:   worldID,
		NQ:        append([]int(nil), e.nq...),
		HQ:        append([]int(nil), e.hq...),
		UpdatedAt: e.updatedAt,
	}
}

// insertCapped inserts price into an ascending list, keeping at most max
// of the smallest values.
func insertCapped(list []int, price, max int) []int {
	i := sort.SearchInts(list, price)
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = price
	if len(list) > max {
		list = list[:max]
	}
	return list
}

// sortCapped copies, sorts ascending, and caps a price list, dropping
// non-positive values.
func sortCapped(prices []int, max int) []int {
	out := make([]int, 0, len(prices))
	for _, p := range prices {
		if p > 0 {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	if len(out) > max {
		out = out[:max]
	}
	return out
}
