// Package vectorstore holds helpers shared by the domain.VectorIndex
// implementations in its subpackages.
package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"docrag/internal/domain"
)

// L2 returns the Euclidean distance between two equal-length vectors.
func L2(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CheckDimension verifies every entry has the index dimension. When the
// index is empty (dim == 0) the first entry fixes it. It returns the
// resulting dimension.
func CheckDimension(dim int, entries []domain.IndexEntry) (int, error) {
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			return dim, fmt.Errorf("%w: entry %s has no embedding", domain.ErrInvalidInput, e.ID)
		}
		if dim == 0 {
			dim = len(e.Embedding)
			continue
		}
		if len(e.Embedding) != dim {
			return dim, fmt.Errorf("%w: entry %s has %d dimensions, index has %d", domain.ErrDimensionMismatch, e.ID, len(e.Embedding), dim)
		}
	}
	return dim, nil
}

// CheckQuery verifies a query vector against the index dimension.
func CheckQuery(dim int, vector []float64) error {
	if dim != 0 && len(vector) != dim {
		return fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

// Matches reports whether e satisfies the filter.
func Matches(filter domain.Filter, e domain.IndexEntry) bool {
	return filter.Title == "" || e.Metadata.Title == filter.Title
}

// SortEntries orders entries by title, chunk index and id.
func SortEntries(entries []domain.IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Metadata, entries[j].Metadata
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return entries[i].ID < entries[j].ID
	})
}

// Nearest ranks entries by L2 distance to vector and keeps the k closest.
// Ties are broken by id so results are reproducible.
func Nearest(entries []domain.IndexEntry, vector []float64, k int) []domain.Match {
	if k <= 0 || len(entries) == 0 {
		return nil
	}
	matches := make([]domain.Match, len(entries))
	for i, e := range entries {
		matches[i] = domain.Match{Entry: e, Distance: L2(e.Embedding, vector)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Entry.ID < matches[j].Entry.ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// Titles returns the distinct sorted titles of entries.
func Titles(entries []domain.IndexEntry) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, e := range entries {
		if _, ok := seen[e.Metadata.Title]; ok {
			continue
		}
		seen[e.Metadata.Title] = struct{}{}
		out = append(out, e.Metadata.Title)
	}
	sort.Strings(out)
	return out
}
