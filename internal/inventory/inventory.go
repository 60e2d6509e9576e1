// Package inventory supplies the set of item ids worth mirroring. The
// daemon has no game client attached, so the snapshot comes from
// configuration or a watch-list file rather than live memory reads.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Static is a fixed item-id snapshot.
type Static struct {
	ids []int
}

func NewStatic(ids []int) *Static {
	return &Static{ids: append([]int(nil), ids...)}
}

func (s *Static) ItemIDs() []int {
	return append([]int(nil), s.ids...)
}

// FileSource reads a JSON array of item ids from a watch-list file and
// can be reloaded without restarting the daemon.
type FileSource struct {
	path string

	mu  sync.RWMutex
	ids []int
}

func NewFileSource(path string) (*FileSource, error) {
	f := &FileSource{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the watch-list file. The previous snapshot is kept on
// failure.
func (f *FileSource) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading watch list: %w", err)
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("parsing watch list: %w", err)
	}

	f.mu.Lock()
	f.ids = ids
	f.mu.Unlock()
	return nil
}

func (f *FileSource) ItemIDs() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]int(nil), f.ids...)
}
