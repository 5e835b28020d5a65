package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

// fakeEmbedder returns the rune count as a one-dimensional vector and
// fails for inputs longer than limit or containing "poison".
type fakeEmbedder struct {
	limit int
	delay time.Duration

	mu    sync.Mutex
	calls []string
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 1 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if strings.Contains(text, "poison") {
		return nil, errors.New("model rejected input")
	}
	if f.limit > 0 && len([]rune(text)) > f.limit {
		return nil, fmt.Errorf("input too long: %d", len(text))
	}
	if strings.Contains(text, "nan") {
		return []float64{math.NaN()}, nil
	}
	return []float64{float64(len([]rune(text)))}, nil
}

func chunksOf(contents ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(contents))
	for i, c := range contents {
		out[i] = domain.Chunk{Title: "doc", Index: i, Content: c}
	}
	return out
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a b c", Clean("a\x00\x01b \n\t c"))
	assert.Equal(t, "x y", Clean("  x\u0085y  "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hé", Truncate("héllo", 2))
	assert.Equal(t, "hi", Truncate("hi", 5))
	assert.Equal(t, "hi", Truncate("hi", 0))
}

func TestEmbedChunks_PreservesOrder(t *testing.T) {
	f := &fakeEmbedder{}
	o := NewOrchestrator(f, WithWorkers(8))

	contents := make([]string, 50)
	for i := range contents {
		contents[i] = strings.Repeat("x", i+1)
	}
	embedded, failed, err := o.EmbedChunks(context.Background(), chunksOf(contents...))
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, embedded, 50)
	for i, e := range embedded {
		assert.Equal(t, i, e.Chunk.Index)
		assert.Equal(t, []float64{float64(i + 1)}, e.Embedding.Vector)
		assert.Equal(t, "fake", e.Embedding.Model)
	}
}

func TestEmbedChunks_RetriesWithCleanedTruncatedText(t *testing.T) {
	f := &fakeEmbedder{limit: 10}
	o := NewOrchestrator(f, WithRetryChars(10))

	long := "abc\x00def   ghi jkl mno"
	embedded, failed, err := o.EmbedChunks(context.Background(), chunksOf(long))
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, embedded, 1)
	assert.Equal(t, []float64{10}, embedded[0].Embedding.Vector)
	// The record keeps the original chunk content.
	assert.Equal(t, long, embedded[0].Chunk.Content)
	assert.Equal(t, []string{"abc def ghi jkl mno", "abc def gh"}, f.calls)
}

func TestEmbedChunks_FirstAttemptIsCleanedAndBounded(t *testing.T) {
	f := &fakeEmbedder{}
	o := NewOrchestrator(f, WithFirstChars(15), WithRetryChars(10))

	embedded, failed, err := o.EmbedChunks(context.Background(), chunksOf("abc\x00def \n ghi jkl mno pqr"))
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, embedded, 1)
	assert.Equal(t, []string{"abc def ghi jkl"}, f.calls)
	assert.Equal(t, []float64{15}, embedded[0].Embedding.Vector)

	f = &fakeEmbedder{limit: 12}
	o = NewOrchestrator(f, WithFirstChars(15), WithRetryChars(10))
	_, failed, err = o.EmbedChunks(context.Background(), chunksOf("abc def ghi jkl mno"))
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"abc def ghi jkl", "abc def gh"}, f.calls)
}

func TestEmbedChunks_EveryChunkAccountedFor(t *testing.T) {
	f := &fakeEmbedder{}
	o := NewOrchestrator(f, WithWorkers(2))

	embedded, failed, err := o.EmbedChunks(context.Background(), chunksOf("good", "poison pill", "  ", "nan value", "fine"))
	require.NoError(t, err)
	require.Len(t, embedded, 2)
	require.Len(t, failed, 3)

	assert.Equal(t, 0, embedded[0].Chunk.Index)
	assert.Equal(t, 4, embedded[1].Chunk.Index)
	assert.Equal(t, 1, failed[0].Chunk.Index)
	assert.Equal(t, 2, failed[1].Chunk.Index)
	assert.Equal(t, 3, failed[2].Chunk.Index)
	for _, fc := range failed {
		assert.ErrorIs(t, fc.Err, domain.ErrEmbedding)
	}
}

func TestEmbedChunks_Cancelled(t *testing.T) {
	f := &fakeEmbedder{delay: 50 * time.Millisecond}
	o := NewOrchestrator(f, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	embedded, failed, err := o.EmbedChunks(ctx, chunksOf("a", "b", "c"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, embedded)
	assert.Nil(t, failed)
}

func TestEmbedChunks_RateLimited(t *testing.T) {
	f := &fakeEmbedder{}
	o := NewOrchestrator(f, WithWorkers(4), WithRateLimit(50))

	start := time.Now()
	_, _, err := o.EmbedChunks(context.Background(), chunksOf("a", "b", "c", "d", "e", "f"))
	require.NoError(t, err)
	// Burst of one at 50/s: five waits of 20ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestEmbedText(t *testing.T) {
	o := NewOrchestrator(&fakeEmbedder{})
	v, err := o.EmbedText(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, v)
	assert.Equal(t, "fake", o.Model())
}
