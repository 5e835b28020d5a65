package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

// DefaultTokenSize and DefaultTokenOverlap are the token strategy defaults.
const (
	DefaultTokenSize    = 512
	DefaultTokenOverlap = 100
)

// TokenChunker slides a window over tokenizer ids and decodes each window
// back to text.
type TokenChunker struct {
	tokenizer domain.Tokenizer
	size      int
	overlap   int
}

// NewTokenChunker creates a token chunker.
func NewTokenChunker(tokenizer domain.Tokenizer, size, overlap int) (*TokenChunker, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", domain.ErrInvalidInput)
	}
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &TokenChunker{tokenizer: tokenizer, size: size, overlap: overlap}, nil
}

// Ensure TokenChunker implements the interface.
var _ domain.Chunker = (*TokenChunker)(nil)

func (c *TokenChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	tokens := c.tokenizer.Encode(doc.Text)
	wins, err := Windows(len(tokens), c.size, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(wins))
	for i, w := range wins {
		content := c.tokenizer.Decode(tokens[w.Start:w.End])
		chunks[i] = domain.Chunk{
			Title:       doc.Title,
			Index:       i,
			Content:     content,
			TokenLength: w.End - w.Start,
			CharLength:  utf8.RuneCountInString(content),
		}
	}
	return chunks, nil
}
