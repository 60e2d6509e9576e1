// Package scope translates the configured subscription breadth (a single
// world, whole data centers, whole regions, or one default scope string)
// into concrete world-id sets and the labels the pull API expects.
package scope

import "fmt"

// Mode selects how the subscription scope is interpreted.
type Mode int

const (
	ModeAll Mode = iota
	ModeWorld
	ModeDataCenter
	ModeRegion
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeWorld:
		return "world"
	case ModeDataCenter:
		return "datacenter"
	case ModeRegion:
		return "region"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a config-file mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "all":
		return ModeAll, nil
	case "world":
		return ModeWorld, nil
	case "datacenter", "dc":
		return ModeDataCenter, nil
	case "region":
		return ModeRegion, nil
	}
	return ModeAll, fmt.Errorf("unknown scope mode %q", s)
}

// Directory answers name/id lookups for worlds, data centers, and
// regions. The concrete implementation lives in internal/worlds; tests
// substitute their own.
type Directory interface {
	WorldName(id int) (string, bool)
	WorldID(name string) (int, bool)
	DataCenterWorlds(name string) []int
	RegionDataCenters(name string) []string
}

// Selection is the configured scope: a mode plus whichever selector list
// that mode reads.
type Selection struct {
	Mode         Mode
	DefaultScope string // ModeAll: world, DC, or region name
	WorldIDs     []int
	DataCenters  []string
	Regions      []string
}

// Resolved is one (label, world set) pair. The label doubles as the pull
// API's scope parameter; the world set is every world the labeled data
// covers.
type Resolved struct {
	Label    string
	WorldIDs []int
}

// Resolve expands a Selection against the directory.
//
// ModeAll always yields exactly one pair; if the default scope string is
// not a known world, data center, or region its world set is empty and
// the caller treats it as "no fetch possible". The other modes skip
// selectors that resolve to nothing.
func Resolve(sel Selection, dir Directory) []Resolved {
	switch sel.Mode {
	case ModeWorld:
		out := make([]Resolved, 0, len(sel.WorldIDs))
		for _, id := range sel.WorldIDs {
			name, ok := dir.WorldName(id)
			if !ok {
				continue
			}
			out = append(out, Resolved{Label: name, WorldIDs: []int{id}})
		}
		return out

	case ModeDataCenter:
		out := make([]Resolved, 0, len(sel.DataCenters))
		for _, dc := range sel.DataCenters {
			worlds := dir.DataCenterWorlds(dc)
			if len(worlds) == 0 {
				continue
			}
			out = append(out, Resolved{Label: dc, WorldIDs: worlds})
		}
		return out

	case ModeRegion:
		out := make([]Resolved, 0, len(sel.Regions))
		for _, region := range sel.Regions {
			worlds := regionWorlds(region, dir)
			if len(worlds) == 0 {
				continue
			}
			out = append(out, Resolved{Label: region, WorldIDs: worlds})
		}
		return out

	default: // ModeAll
		return []Resolved{resolveDefault(sel.DefaultScope, dir)}
	}
}

// resolveDefault classifies the single default scope string: world name
// first, then data center, then region.
func resolveDefault(name string, dir Directory) Resolved {
	if id, ok := dir.WorldID(name); ok {
		return Resolved{Label: name, WorldIDs: []int{id}}
	}
	if worlds := dir.DataCenterWorlds(name); len(worlds) > 0 {
		return Resolved{Label: name, WorldIDs: worlds}
	}
	return Resolved{Label: name, WorldIDs: regionWorlds(name, dir)}
}

func regionWorlds(region string, dir Directory) []int {
	var worlds []int
	for _, dc := range dir.RegionDataCenters(region) {
		worlds = append(worlds, dir.DataCenterWorlds(dc)...)
	}
	return worlds
}
