// Package snapshot persists the listings cache across restarts as a
// gzip-compressed JSON file, written atomically via a temp file and
// rename so a crash mid-write never leaves a torn snapshot.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/cache"
)

type payload struct {
	SavedAt time.Time     `json:"savedAt"`
	Entries []cache.Entry `json:"entries"`
}

type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Save writes the entries to disk, replacing any previous snapshot.
func (s *Store) Save(entries []cache.Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}

	err = writeGzipJSON(f, payload{SavedAt: time.Now(), Entries: entries})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot: %w", err)
	}

	s.logger.Info("cache snapshot saved",
		zap.String("path", s.path), zap.Int("entries", len(entries)))
	return nil
}

// Load reads the snapshot if one exists. A missing file is not an
// error; the daemon just starts cold.
func (s *Store) Load() ([]cache.Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	defer func() { _ = gz.Close() }()

	var p payload
	if err := json.NewDecoder(gz).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	s.logger.Info("cache snapshot loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(p.Entries)),
		zap.Time("savedAt", p.SavedAt),
	)
	return p.Entries, nil
}

func writeGzipJSON(f *os.File, p payload) error {
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(p); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}
