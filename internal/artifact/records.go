package artifact

import (
	"errors"
	"time"

	"docrag/internal/domain"
)

// TextRecord is the extracted text of one document.
type TextRecord struct {
	Title      string                  `json:"title"`
	Text       string                  `json:"text"`
	Metadata   domain.DocumentMetadata `json:"metadata"`
	IngestedAt time.Time               `json:"ingested_at"`
}

// ChunkItem is one chunk inside a ChunkRecord.
type ChunkItem struct {
	ChunkIndex   int    `json:"chunk_index"`
	ChunkContent string `json:"chunk_content"`
	TokenLength  int    `json:"token_length,omitempty"`
}

// ChunkRecord is one chunk file. Part is 0 for an unpaged document and
// 1-based otherwise.
type ChunkRecord struct {
	Title  string      `json:"title"`
	Part   int         `json:"part"`
	Chunks []ChunkItem `json:"chunks"`
}

// EmbeddingRecord is the persisted embedding of one chunk.
type EmbeddingRecord struct {
	Title          string    `json:"title"`
	ChunkIndex     int       `json:"chunk_index"`
	ChunkContent   string    `json:"chunk_content"`
	Embedding      []float64 `json:"embedding"`
	TokenLength    int       `json:"token_length"`
	SourceFile     string    `json:"source_file"`
	EmbeddingModel string    `json:"embedding_model"`
}

// FailedChunkRecord is a chunk the embedder could not process.
type FailedChunkRecord struct {
	Title        string `json:"title"`
	ChunkIndex   int    `json:"chunk_index"`
	ChunkContent string `json:"chunk_content"`
	TokenLength  int    `json:"token_length,omitempty"`
	SourceFile   string `json:"source_file"`
	Error        string `json:"error"`
}

func NewTextRecord(doc domain.Document) TextRecord {
	return TextRecord{Title: doc.Title, Text: doc.Text, Metadata: doc.Metadata, IngestedAt: doc.IngestedAt}
}

func (r TextRecord) Document() domain.Document {
	return domain.Document{Title: r.Title, Text: r.Text, Metadata: r.Metadata, IngestedAt: r.IngestedAt}
}

func NewEmbeddingRecord(ec domain.EmbeddedChunk, sourceFile string) EmbeddingRecord {
	return EmbeddingRecord{
		Title:          ec.Chunk.Title,
		ChunkIndex:     ec.Chunk.Index,
		ChunkContent:   ec.Chunk.Content,
		Embedding:      ec.Embedding.Vector,
		TokenLength:    ec.Chunk.TokenLength,
		SourceFile:     sourceFile,
		EmbeddingModel: ec.Embedding.Model,
	}
}

// EmbeddedChunk converts the record back into the pipeline type.
func (r EmbeddingRecord) EmbeddedChunk() domain.EmbeddedChunk {
	return domain.EmbeddedChunk{
		Chunk: domain.Chunk{
			Title:       r.Title,
			Index:       r.ChunkIndex,
			Content:     r.ChunkContent,
			TokenLength: r.TokenLength,
			CharLength:  len([]rune(r.ChunkContent)),
		},
		Embedding: domain.Embedding{Vector: r.Embedding, Model: r.EmbeddingModel},
	}
}

func NewFailedChunkRecord(fc domain.FailedChunk, sourceFile string) FailedChunkRecord {
	msg := "unknown error"
	if fc.Err != nil {
		msg = fc.Err.Error()
	}
	return FailedChunkRecord{
		Title:        fc.Chunk.Title,
		ChunkIndex:   fc.Chunk.Index,
		ChunkContent: fc.Chunk.Content,
		TokenLength:  fc.Chunk.TokenLength,
		SourceFile:   sourceFile,
		Error:        msg,
	}
}

func (r FailedChunkRecord) Chunk() domain.Chunk {
	return domain.Chunk{
		Title:       r.Title,
		Index:       r.ChunkIndex,
		Content:     r.ChunkContent,
		TokenLength: r.TokenLength,
		CharLength:  len([]rune(r.ChunkContent)),
	}
}

// FailedChunk rebuilds the pipeline failure; the original error type is lost.
func (r FailedChunkRecord) FailedChunk() domain.FailedChunk {
	return domain.FailedChunk{Chunk: r.Chunk(), Err: errors.New(r.Error)}
}
