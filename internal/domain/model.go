package domain

import "time"

// DocumentMetadata describes where a document's text came from.
type DocumentMetadata struct {
	PageCount  int    `json:"page_count"`
	SourceFile string `json:"source_file"`
	Format     string `json:"format"`
}

// Document is a single extracted source file. Title is derived from the
// file name and identifies the document across the corpus.
type Document struct {
	Title      string
	Text       string
	Metadata   DocumentMetadata
	IngestedAt time.Time
}

// Chunk is a bounded span of a document used for embedding and retrieval.
// Index is 0-based and stable for the same document and chunking parameters.
type Chunk struct {
	Title       string
	Index       int
	Content     string
	TokenLength int
	CharLength  int
}

// Embedding is the vector produced for one chunk together with the model
// that produced it.
type Embedding struct {
	Vector []float64
	Model  string
}

// EmbeddedChunk pairs a chunk with its embedding.
type EmbeddedChunk struct {
	Chunk     Chunk
	Embedding Embedding
}

// FailedChunk records a chunk that could not be embedded.
type FailedChunk struct {
	Chunk Chunk
	Err   error
}

// EntryMetadata is the metadata persisted next to every index entry.
type EntryMetadata struct {
	Title          string `json:"title"`
	SourceFile     string `json:"source_file"`
	ChunkIndex     int    `json:"chunk_index"`
	TokenLength    int    `json:"token_length"`
	EmbeddingModel string `json:"embedding_model"`
}

// IndexEntry is the persisted unit of the vector index.
type IndexEntry struct {
	ID        string        `json:"id"`
	Embedding []float64     `json:"embedding"`
	Document  string        `json:"document"`
	Metadata  EntryMetadata `json:"metadata"`
}

// Match is a vector query hit. Distance is the raw metric value of the
// index (L2 by default); it is not bounded to [0,1].
type Match struct {
	Entry    IndexEntry
	Distance float64
}

// Filter selects entries by metadata equality. An empty filter matches all.
type Filter struct {
	Title string
}

// Origin tells which retrieval path produced a result.
type Origin string

const (
	OriginMetadata Origin = "metadata"
	OriginVector   Origin = "vector"
)

// RetrievalResult is a query-scoped context chunk. Score is 1.0 for exact
// metadata matches and the raw index distance for vector matches.
type RetrievalResult struct {
	Source     string  `json:"source"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Origin     Origin  `json:"origin"`
}

// Answer is the generated response together with the context it was built from.
type Answer struct {
	Query   string            `json:"query"`
	Text    string            `json:"answer"`
	Prompt  string            `json:"prompt,omitempty"`
	Context []RetrievalResult `json:"context"`
}
