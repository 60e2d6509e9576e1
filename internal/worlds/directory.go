// Package worlds holds the world-name directory: world↔id,
// data-center→worlds, and region→data-centers lookups used by scope
// resolution. The directory is loaded once at startup from the market
// API and is immutable afterwards.
package worlds

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/api"
)

type Directory struct {
	worldNames map[int]string
	worldIDs   map[string]int
	dcWorlds   map[string][]int
	regionDCs  map[string][]string
}

// New builds a directory from already-fetched API payloads.
func New(dcs []api.DataCenter, ws []api.World) *Directory {
	d := &Directory{
		worldNames: make(map[int]string, len(ws)),
		worldIDs:   make(map[string]int, len(ws)),
		dcWorlds:   make(map[string][]int, len(dcs)),
		regionDCs:  make(map[string][]string),
	}
	for _, w := range ws {
		d.worldNames[w.ID] = w.Name
		d.worldIDs[w.Name] = w.ID
	}
	for _, dc := range dcs {
		worlds := append([]int(nil), dc.Worlds...)
		sort.Ints(worlds)
		d.dcWorlds[dc.Name] = worlds
		if dc.Region != "" {
			d.regionDCs[dc.Region] = append(d.regionDCs[dc.Region], dc.Name)
		}
	}
	return d
}

// Load fetches both directory endpoints and builds the directory.
func Load(ctx context.Context, client api.Client, logger *zap.Logger) (*Directory, error) {
	dcs, err := client.DataCenters(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching data centers: %w", err)
	}
	ws, err := client.Worlds(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching worlds: %w", err)
	}

	logger.Info("world directory loaded",
		zap.Int("worlds", len(ws)),
		zap.Int("dataCenters", len(dcs)),
	)
	return New(dcs, ws), nil
}

// WorldName resolves a world id to its name.
func (d *Directory) WorldName(id int) (string, bool) {
	name, ok := d.worldNames[id]
	return name, ok
}

// WorldID resolves a world name to its id.
func (d *Directory) WorldID(name string) (int, bool) {
	id, ok := d.worldIDs[name]
	return id, ok
}

// DataCenterWorlds returns the member world ids of a data center, sorted
// ascending. Unknown names return nil.
func (d *Directory) DataCenterWorlds(name string) []int {
	return d.dcWorlds[name]
}

// RegionDataCenters returns the data-center names under a region.
func (d *Directory) RegionDataCenters(name string) []string {
	return d.regionDCs[name]
}

// Worlds returns the number of known worlds.
func (d *Directory) Worlds() int {
	return len(d.worldNames)
}
