package chunker

import (
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
	"docrag/internal/logger"
)

// DefaultCharSize and DefaultCharOverlap are the character strategy defaults.
const (
	DefaultCharSize    = 1200
	DefaultCharOverlap = 150
)

// CharChunker splits text on rune offsets.
type CharChunker struct {
	size     int
	overlap  int
	adaptive bool
}

// Option configures a CharChunker.
type Option func(*CharChunker)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *CharChunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *CharChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithAdaptive rescales the window per document with AdjustChunkSize.
func WithAdaptive(adaptive bool) Option {
	return func(c *CharChunker) {
		c.adaptive = adaptive
	}
}

// NewCharChunker creates a character chunker. The configured size must
// exceed the overlap; Chunk reports the error otherwise.
func NewCharChunker(opts ...Option) *CharChunker {
	c := &CharChunker{size: DefaultCharSize, overlap: DefaultCharOverlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ensure CharChunker implements the interface.
var _ domain.Chunker = (*CharChunker)(nil)

// Chunk splits the document text. Whitespace-only text yields no chunks.
func (c *CharChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if err := validateWindow(c.size, c.overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	runes := []rune(doc.Text)
	size, overlap := c.size, c.overlap
	if c.adaptive {
		size = AdjustChunkSize(len(runes), c.size)
		if size <= overlap {
			overlap = size / 4
		}
		if size != c.size {
			logger.Debug("chunker: %s adjusted window %d -> %d (%d chars)", doc.Title, c.size, size, len(runes))
		}
	}
	wins, err := Windows(len(runes), size, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(wins))
	for i, w := range wins {
		content := string(runes[w.Start:w.End])
		chunks[i] = domain.Chunk{
			Title:       doc.Title,
			Index:       i,
			Content:     content,
			TokenLength: len(strings.Fields(content)),
			CharLength:  utf8.RuneCountInString(content),
		}
	}
	return chunks, nil
}
