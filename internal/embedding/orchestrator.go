// Package embedding turns chunks into embeddings. The Orchestrator fans
// chunks out over a bounded worker pool, sends cleaned and bounded text,
// retries failures with a tighter bound, and reports every chunk as either
// embedded or failed.
package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/retry"
)

// Defaults for the input bounds and worker count.
const (
	DefaultFirstChars = 1024
	DefaultRetryChars = 512
	DefaultWorkers    = 4
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]+`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Clean replaces control characters with spaces and collapses whitespace.
func Clean(text string) string {
	text = controlChars.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Truncate cuts text to at most n runes.
func Truncate(text string, n int) string {
	if n <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

// Orchestrator embeds chunks through a domain.Embedder.
type Orchestrator struct {
	embedder   domain.Embedder
	workers    int
	limiter    *rate.Limiter
	firstChars int
	retryChars int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the number of concurrent Embed calls.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRateLimit caps Embed calls per second. Zero means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(o *Orchestrator) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithFirstChars sets the rune bound applied to the cleaned text before
// the first attempt.
func WithFirstChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.firstChars = n
		}
	}
}

// WithRetryChars sets the rune bound applied before the second attempt.
func WithRetryChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.retryChars = n
		}
	}
}

// NewOrchestrator creates an orchestrator around the embedder.
func NewOrchestrator(e domain.Embedder, opts ...Option) *Orchestrator {
	o := &Orchestrator{embedder: e, workers: DefaultWorkers, firstChars: DefaultFirstChars, retryChars: DefaultRetryChars}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model returns the name of the wrapped embedder.
func (o *Orchestrator) Model() string { return o.embedder.Name() }

func (o *Orchestrator) policy() retry.Policy {
	return retry.Policy{
		Attempts: 2,
		Prepare: func(s string) string {
			return Truncate(Clean(s), o.firstChars)
		},
		Shrink: func(s string) string {
			return Truncate(Clean(s), o.retryChars)
		},
	}
}

type outcome struct {
	vec []float64
	err error
}

// EmbedChunks embeds every chunk. Results keep the input order, which is
// chunk_index order for chunks produced by a Chunker. A non-nil error is
// only returned when ctx is done; nothing is reported as embedded then.
func (o *Orchestrator) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, []domain.FailedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}
	start := time.Now()
	results := make([]outcome, len(chunks))

	g := new(errgroup.Group)
	g.SetLimit(o.workers)
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			vec, err := o.embedOne(ctx, chunks[i])
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = outcome{vec: vec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	model := o.embedder.Name()
	embedded := make([]domain.EmbeddedChunk, 0, len(chunks))
	var failed []domain.FailedChunk
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, domain.FailedChunk{Chunk: chunks[i], Err: r.err})
			continue
		}
		embedded = append(embedded, domain.EmbeddedChunk{
			Chunk:     chunks[i],
			Embedding: domain.Embedding{Vector: r.vec, Model: model},
		})
	}
	logger.Debug("embedding: %d chunks, %d embedded, %d failed in %s", len(chunks), len(embedded), len(failed), time.Since(start).Round(time.Millisecond))
	return embedded, failed, nil
}

// EmbedText embeds a single text with the same retry policy.
func (o *Orchestrator) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return o.embedOne(ctx, domain.Chunk{Content: text})
}

func (o *Orchestrator) embedOne(ctx context.Context, c domain.Chunk) ([]float64, error) {
	if strings.TrimSpace(c.Content) == "" {
		return nil, fmt.Errorf("%w: empty chunk", domain.ErrEmbedding)
	}
	vec, st, err := retry.Do(ctx, o.policy(), c.Content, func(ctx context.Context, text string) ([]float64, error) {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		v, err := o.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if err := checkVector(v); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("embedding: %s chunk %d failed: %v", c.Title, c.Index, err)
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if st.N > 1 {
		logger.Debug("embedding: %s chunk %d embedded after truncation to %d chars", c.Title, c.Index, len([]rune(st.Input)))
	}
	return vec, nil
}

func checkVector(v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrEmbedding)
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite vector component", domain.ErrEmbedding)
		}
	}
	return nil
}
