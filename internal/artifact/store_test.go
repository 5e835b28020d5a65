package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func makeChunks(title string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		content := fmt.Sprintf("chunk %d of %s", i, title)
		out[i] = domain.Chunk{Title: title, Index: i, Content: content, TokenLength: 4, CharLength: len([]rune(content))}
	}
	return out
}

func TestText_RoundTrip(t *testing.T) {
	s := newStore(t)
	doc := domain.Document{
		Title:      "TS-38.401",
		Text:       "Overview of the RAN.",
		Metadata:   domain.DocumentMetadata{PageCount: 3, SourceFile: "TS-38.401.pdf", Format: "PDF"},
		IngestedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveText(doc))

	got, err := s.LoadText("TS-38.401")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Text, got.Text)
	assert.Equal(t, doc.Metadata, got.Metadata)
	assert.True(t, doc.IngestedAt.Equal(got.IngestedAt))

	_, err = s.LoadText("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunks_SingleFile(t *testing.T) {
	s := newStore(t)
	chunks := makeChunks("doc", 3)

	paths, err := s.SaveChunks("doc", chunks, 5, 2)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "doc_chunks.json", filepath.Base(paths[0]))

	got, err := s.LoadChunks("doc")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
}

func TestChunks_Paged(t *testing.T) {
	s := newStore(t)
	chunks := makeChunks("big", 7)

	paths, err := s.SaveChunks("big", chunks, 5, 3)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "big_chunks_part1.json", filepath.Base(paths[0]))
	assert.Equal(t, "big_chunks_part3.json", filepath.Base(paths[2]))

	got, err := s.LoadChunks("big")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)

	// Re-saving below the threshold drops the part files.
	_, err = s.SaveChunks("big", chunks[:2], 5, 3)
	require.NoError(t, err)
	got, err = s.LoadChunks("big")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	_, err = os.Stat(paths[0])
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestChunks_Missing(t *testing.T) {
	_, err := newStore(t).LoadChunks("nothing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmbeddings_AndFailed(t *testing.T) {
	s := newStore(t)
	chunks := makeChunks("doc", 3)
	for _, c := range chunks[:2] {
		ec := domain.EmbeddedChunk{Chunk: c, Embedding: domain.Embedding{Vector: []float64{0.1, 0.2}, Model: "m"}}
		require.NoError(t, s.SaveEmbedding(NewEmbeddingRecord(ec, "doc.txt")))
	}
	require.NoError(t, s.SaveFailed(NewFailedChunkRecord(domain.FailedChunk{Chunk: chunks[2], Err: errors.New("timeout")}, "doc.txt")))

	// A title that shares a prefix must not be picked up.
	other := domain.EmbeddedChunk{Chunk: domain.Chunk{Title: "doc_chunk_x", Index: 0, Content: "c"}, Embedding: domain.Embedding{Vector: []float64{1}, Model: "m"}}
	require.NoError(t, s.SaveEmbedding(NewEmbeddingRecord(other, "x.txt")))

	recs, err := s.LoadEmbeddings("doc")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].ChunkIndex)
	assert.Equal(t, chunks[1], recs[1].EmbeddedChunk().Chunk)

	all, err := s.LoadEmbeddings("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	failed, err := s.LoadFailed("")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "timeout", failed[0].Error)
	assert.Equal(t, chunks[2], failed[0].Chunk())

	require.NoError(t, s.RemoveFailed("doc", 2))
	require.NoError(t, s.RemoveFailed("doc", 2))
	failed, err = s.LoadFailed("doc")
	require.NoError(t, err)
	assert.Empty(t, failed)

	require.NoError(t, s.ResetDocument("doc"))
	recs, err = s.LoadEmbeddings("doc")
	require.NoError(t, err)
	assert.Empty(t, recs)
	all, err = s.LoadEmbeddings("")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLoad_SchemaViolations(t *testing.T) {
	s := newStore(t)
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"title":"doc","chunk_index":0,"chunk_content":"c","source_file":"f","error":"e","extra":1}`},
		{"missing field", `{"title":"doc","chunk_index":0,"chunk_content":"c","source_file":"f"}`},
		{"wrong type", `{"title":"doc","chunk_index":"zero","chunk_content":"c","source_file":"f","error":"e"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(s.Root(), failedDir, "doc_chunk_0.json")
			require.NoError(t, os.WriteFile(p, []byte(tt.body), 0o644))
			_, err := s.LoadFailed("doc")
			assert.ErrorIs(t, err, domain.ErrSchema)
		})
	}
}

func TestLoad_EmbeddingRequiresVector(t *testing.T) {
	s := newStore(t)
	p := filepath.Join(s.Root(), embeddingDir, "doc_chunk_0.json")
	body := `{"title":"doc","chunk_index":0,"chunk_content":"c","embedding":[],"token_length":1,"source_file":"f","embedding_model":"m"}`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	_, err := s.LoadEmbeddings("doc")
	assert.ErrorIs(t, err, domain.ErrSchema)
}
