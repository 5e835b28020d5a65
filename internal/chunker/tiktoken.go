package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"docrag/internal/domain"
)

// DefaultEncoding is the GPT-2 byte-pair encoding.
const DefaultEncoding = "r50k_base"

// Tiktoken adapts a tiktoken encoding to domain.Tokenizer. Special tokens
// are treated as ordinary text.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. The BPE ranks are fetched and
// cached by the library on first use.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// Ensure Tiktoken implements the interface.
var _ domain.Tokenizer = (*Tiktoken)(nil)

func (t *Tiktoken) Name() string { return t.name }

func (t *Tiktoken) Encode(text string) []int { return t.enc.EncodeOrdinary(text) }

func (t *Tiktoken) Decode(tokens []int) string { return t.enc.Decode(tokens) }
