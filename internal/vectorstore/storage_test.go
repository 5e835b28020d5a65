package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func entry(id, title string, idx int, vec ...float64) domain.IndexEntry {
	return domain.IndexEntry{ID: id, Embedding: vec, Metadata: domain.EntryMetadata{Title: title, ChunkIndex: idx}}
}

func TestL2(t *testing.T) {
	assert.InDelta(t, 5.0, L2([]float64{0, 0}, []float64{3, 4}), 1e-12)
}

func TestCheckDimension(t *testing.T) {
	dim, err := CheckDimension(0, []domain.IndexEntry{entry("a", "t", 0, 1, 2), entry("b", "t", 1, 3, 4)})
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = CheckDimension(2, []domain.IndexEntry{entry("c", "t", 2, 1, 2, 3)})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = CheckDimension(2, []domain.IndexEntry{entry("d", "t", 3)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.ErrorIs(t, CheckQuery(2, []float64{1}), domain.ErrDimensionMismatch)
	assert.NoError(t, CheckQuery(0, []float64{1}))
}

func TestNearest(t *testing.T) {
	entries := []domain.IndexEntry{
		entry("far", "x", 0, 10, 10),
		entry("b", "x", 1, 1, 0),
		entry("a", "x", 2, 0, 1),
		entry("origin", "y", 0, 0, 0),
	}
	got := Nearest(entries, []float64{0, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "origin", got[0].Entry.ID)
	// equal distances fall back to id order
	assert.Equal(t, "a", got[1].Entry.ID)
	assert.Equal(t, "b", got[2].Entry.ID)
	assert.InDelta(t, 1.0, got[1].Distance, 1e-12)

	assert.Nil(t, Nearest(entries, []float64{0, 0}, 0))
	assert.Nil(t, Nearest(nil, []float64{0, 0}, 3))
}

func TestSortEntriesAndTitles(t *testing.T) {
	entries := []domain.IndexEntry{
		entry("b_chunk_1", "b", 1, 0),
		entry("a_chunk_10", "a", 10, 0),
		entry("a_chunk_2", "a", 2, 0),
	}
	SortEntries(entries)
	assert.Equal(t, "a_chunk_2", entries[0].ID)
	assert.Equal(t, "a_chunk_10", entries[1].ID)
	assert.Equal(t, []string{"a", "b"}, Titles(entries))
	assert.Equal(t, []string{}, Titles(nil))

	assert.True(t, Matches(domain.Filter{}, entries[0]))
	assert.False(t, Matches(domain.Filter{Title: "b"}, entries[0]))
}
