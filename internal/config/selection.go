package config

import (
	"fmt"
	"strconv"

	"github.com/sileric/mbwatch/internal/scope"
)

// Selection builds the runtime scope selection. World entries may be
// names or numeric ids; names need the directory, so this runs after
// the world list has been loaded.
func (c *ScopeConfig) Selection(dir scope.Directory) (scope.Selection, error) {
	mode, err := scope.ParseMode(c.Mode)
	if err != nil {
		return scope.Selection{}, err
	}

	sel := scope.Selection{
		Mode:         mode,
		DefaultScope: c.DefaultScope,
		DataCenters:  c.DataCenters,
		Regions:      c.Regions,
	}

	for _, w := range c.Worlds {
		if id, err := strconv.Atoi(w); err == nil {
			sel.WorldIDs = append(sel.WorldIDs, id)
			continue
		}
		id, ok := dir.WorldID(w)
		if !ok {
			return scope.Selection{}, fmt.Errorf("unknown world %q", w)
		}
		sel.WorldIDs = append(sel.WorldIDs, id)
	}

	return sel, nil
}
