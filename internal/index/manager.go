// Package index owns the vector index: it derives entry identities,
// rejects unusable vectors, and rebuilds partitioned indices into one.
package index

import (
	"context"
	"fmt"
	"math"
	"sync"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/retriever"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/memory"
)

// EntryID is the deterministic identity of a chunk in the index.
func EntryID(title string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", title, chunkIndex)
}

// NewEntry builds the index entry for an embedded chunk.
func NewEntry(ec domain.EmbeddedChunk, sourceFile string) domain.IndexEntry {
	return domain.IndexEntry{
		ID:        EntryID(ec.Chunk.Title, ec.Chunk.Index),
		Embedding: ec.Embedding.Vector,
		Document:  ec.Chunk.Content,
		Metadata: domain.EntryMetadata{
			Title:          ec.Chunk.Title,
			SourceFile:     sourceFile,
			ChunkIndex:     ec.Chunk.Index,
			TokenLength:    ec.Chunk.TokenLength,
			EmbeddingModel: ec.Embedding.Model,
		},
	}
}

// SkippedEntry is an entry that was not written.
type SkippedEntry struct {
	ID     string
	Reason string
}

// UpsertReport summarises one write.
type UpsertReport struct {
	Upserted int
	Skipped  []SkippedEntry
}

// Manager serialises writes to a domain.VectorIndex. Reads go straight
// to the index.
type Manager struct {
	index domain.VectorIndex
	mu    sync.Mutex
}

func NewManager(idx domain.VectorIndex) *Manager {
	return &Manager{index: idx}
}

// Index returns the underlying store.
func (m *Manager) Index() domain.VectorIndex { return m.index }

// Upsert writes entries by id. Entries with a missing or non-finite vector
// are skipped and reported. A dimension mismatch fails the whole batch
// before anything is written.
func (m *Manager) Upsert(ctx context.Context, entries []domain.IndexEntry) (UpsertReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(ctx, entries)
}

func (m *Manager) upsertLocked(ctx context.Context, entries []domain.IndexEntry) (UpsertReport, error) {
	var report UpsertReport
	valid := make([]domain.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if reason := invalidVector(e.Embedding); reason != "" {
			logger.Warn("index: skipping %s: %s", e.ID, reason)
			report.Skipped = append(report.Skipped, SkippedEntry{ID: e.ID, Reason: reason})
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return report, nil
	}
	if _, err := vectorstore.CheckDimension(m.index.Dimension(), valid); err != nil {
		return report, err
	}
	if err := m.index.Upsert(ctx, valid); err != nil {
		return report, fmt.Errorf("upsert: %w", err)
	}
	report.Upserted = len(valid)
	return report, nil
}

// ReplaceDocument removes every entry of title and writes entries in its
// place, so chunks that no longer exist after re-chunking disappear too.
func (m *Manager) ReplaceDocument(ctx context.Context, title string, entries []domain.IndexEntry) (UpsertReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Metadata.Title != title {
			return UpsertReport{}, fmt.Errorf("%w: entry %s does not belong to %s", domain.ErrInvalidInput, e.ID, title)
		}
	}
	if _, err := vectorstore.CheckDimension(m.index.Dimension(), usable(entries)); err != nil {
		return UpsertReport{}, err
	}
	if err := m.index.Delete(ctx, domain.Filter{Title: title}); err != nil {
		return UpsertReport{}, fmt.Errorf("delete %s: %w", title, err)
	}
	return m.upsertLocked(ctx, entries)
}

// Ensure Manager can back a retriever.
var _ retriever.Store = (*Manager)(nil)

// Get returns the entries matching filter in title and chunk order.
func (m *Manager) Get(ctx context.Context, filter domain.Filter) ([]domain.IndexEntry, error) {
	return m.index.Get(ctx, filter)
}

// GetByTitle returns all chunks of a document in chunk order.
func (m *Manager) GetByTitle(ctx context.Context, title string) ([]domain.IndexEntry, error) {
	return m.index.Get(ctx, domain.Filter{Title: title})
}

// Query returns the k nearest entries.
func (m *Manager) Query(ctx context.Context, vector []float64, k int) ([]domain.Match, error) {
	return m.index.Query(ctx, vector, k)
}

func (m *Manager) Titles(ctx context.Context) ([]string, error) {
	return m.index.Titles(ctx)
}

func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.index.Count(ctx)
}

// Merge rebuilds the entries of every source into a new flat in-memory
// index. See MergeInto.
func Merge(ctx context.Context, sources ...domain.VectorIndex) (*memory.Storage, error) {
	dst := memory.NewStorage()
	if err := MergeInto(ctx, dst, sources...); err != nil {
		return nil, err
	}
	return dst, nil
}

// MergeInto copies every entry of sources into dst. All non-empty
// sources and dst must share one dimension; this is checked before
// anything is written. Later sources win on duplicate ids.
func MergeInto(ctx context.Context, dst domain.VectorIndex, sources ...domain.VectorIndex) error {
	dim := dst.Dimension()
	for i, src := range sources {
		d := src.Dimension()
		if d == 0 {
			continue
		}
		if dim == 0 {
			dim = d
			continue
		}
		if d != dim {
			return fmt.Errorf("%w: source %d has %d dimensions, expected %d", domain.ErrDimensionMismatch, i, d, dim)
		}
	}
	total := 0
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := src.Get(ctx, domain.Filter{})
		if err != nil {
			return fmt.Errorf("read source %d: %w", i, err)
		}
		if err := dst.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("write source %d: %w", i, err)
		}
		total += len(entries)
	}
	logger.Info("merged %d entries from %d indices (dimension %d)", total, len(sources), dim)
	return nil
}

func usable(entries []domain.IndexEntry) []domain.IndexEntry {
	out := make([]domain.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if invalidVector(e.Embedding) == "" {
			out = append(out, e)
		}
	}
	return out
}

func invalidVector(v []float64) string {
	if len(v) == 0 {
		return "missing embedding"
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "non-numeric embedding"
		}
	}
	return ""
}
