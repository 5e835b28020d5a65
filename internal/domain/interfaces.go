package domain

import "context"

// Embedder converts free text into a fixed-dimension vector. It must fail
// on oversized or malformed input instead of returning a zero vector.
type Embedder interface {
	// Name identifies the model that produced the vectors.
	Name() string
	// Dimension returns the vector length, or 0 if not yet known.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Tokenizer maps text to token ids and back.
type Tokenizer interface {
	Name() string
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunker splits documents into ordered chunks.
type Chunker interface {
	Chunk(doc Document) ([]Chunk, error)
}

// VectorIndex persists index entries and supports nearest-neighbour search
// and metadata equality lookups.
type VectorIndex interface {
	// Upsert inserts or replaces entries by ID.
	Upsert(ctx context.Context, entries []IndexEntry) error
	// Get returns every entry matching the filter.
	Get(ctx context.Context, filter Filter) ([]IndexEntry, error)
	// Query returns the k nearest entries, closest first.
	Query(ctx context.Context, vector []float64, k int) ([]Match, error)
	// Delete removes every entry matching the filter.
	Delete(ctx context.Context, filter Filter) error
	// Titles returns the distinct document titles in the index.
	Titles(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	// Dimension returns the vector length of the index, 0 when empty.
	Dimension() int
	Close() error
}

// Generator turns a prompt into text. Output is not deterministic.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever produces ranked context chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error)
}
