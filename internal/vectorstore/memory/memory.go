// Package memory is an in-process flat L2 index. It can be persisted as a
// JSON snapshot, one file per partition.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
)

// Storage is a brute-force vector index guarded by a RWMutex.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]domain.IndexEntry
	path      string
}

type snapshot struct {
	Dimension int                 `json:"dimension"`
	Entries   []domain.IndexEntry `json:"entries"`
}

// NewStorage returns an empty, unpersisted index.
func NewStorage() *Storage {
	return &Storage{entries: make(map[string]domain.IndexEntry)}
}

// Open loads the snapshot at path, or starts empty when it does not exist.
// Close writes the index back to path.
func Open(path string) (*Storage, error) {
	s := NewStorage()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	dim, err := vectorstore.CheckDimension(snap.Dimension, snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	s.dimension = dim
	for _, e := range snap.Entries {
		s.entries[e.ID] = e
	}
	return s, nil
}

// Ensure Storage implements the interface.
var _ domain.VectorIndex = (*Storage)(nil)

func (s *Storage) Upsert(_ context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.CheckDimension(s.dimension, entries)
	if err != nil {
		return err
	}
	s.dimension = dim
	for _, e := range entries {
		e.Embedding = append([]float64(nil), e.Embedding...)
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Storage) Get(_ context.Context, filter domain.Filter) ([]domain.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IndexEntry, 0)
	for _, e := range s.entries {
		if vectorstore.Matches(filter, e) {
			out = append(out, e)
		}
	}
	vectorstore.SortEntries(out)
	return out, nil
}

func (s *Storage) Query(_ context.Context, vector []float64, k int) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	if err := vectorstore.CheckQuery(s.dimension, vector); err != nil {
		return nil, err
	}
	all := make([]domain.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	return vectorstore.Nearest(all, vector, k), nil
}

func (s *Storage) Delete(_ context.Context, filter domain.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if vectorstore.Matches(filter, e) {
			delete(s.entries, id)
		}
	}
	if len(s.entries) == 0 {
		s.dimension = 0
	}
	return nil
}

func (s *Storage) Titles(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	return vectorstore.Titles(all), nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Save writes a snapshot to path atomically.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{Dimension: s.dimension, Entries: make([]domain.IndexEntry, 0, len(s.entries))}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, e)
	}
	s.mu.RUnlock()
	vectorstore.SortEntries(snap.Entries)

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close persists the index when it was opened from a path.
func (s *Storage) Close() error {
	if s.path == "" {
		return nil
	}
	return s.Save(s.path)
}
