// Package retriever combines exact document-title lookup with vector
// similarity search.
//
// Results from the two paths carry different score semantics and are
// never merged or re-ranked against each other: title matches score 1.0
// and come first in chunk order, vector matches follow in distance order
// with the raw index distance as their score. The same chunk may appear
// in both groups.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/logger"
)

// ExactScore is the score assigned to chunks of a resolved document title.
const ExactScore = 1.0

// Overshoot is how many results beyond top_k a retrieval may return.
const Overshoot = 2

// Store is the read side of a vector index.
type Store interface {
	Get(ctx context.Context, filter domain.Filter) ([]domain.IndexEntry, error)
	Query(ctx context.Context, vector []float64, k int) ([]domain.Match, error)
	Titles(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Hybrid implements domain.Retriever.
type Hybrid struct {
	store     Store
	embedder  domain.Embedder
	threshold float64
}

// Option configures a Hybrid retriever.
type Option func(*Hybrid)

// WithFuzzyThreshold sets the minimum title similarity (exclusive).
func WithFuzzyThreshold(t float64) Option {
	return func(h *Hybrid) {
		if t > 0 && t <= 1 {
			h.threshold = t
		}
	}
}

// NewHybrid creates a retriever over store, embedding queries with embedder.
func NewHybrid(store Store, embedder domain.Embedder, opts ...Option) *Hybrid {
	h := &Hybrid{store: store, embedder: embedder, threshold: DefaultFuzzyThreshold}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ensure Hybrid implements the interface.
var _ domain.Retriever = (*Hybrid)(nil)

// Retrieve returns at most topK+2 results: every chunk of a document
// named in the query, then the topK nearest chunks to the query. Both
// groups have boilerplate stripped. An empty index yields no results and
// no error. Store or embedder failures wrap domain.ErrIndexUnavailable.
func (h *Hybrid) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidQuery)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidQuery, topK)
	}
	logger.Section("Hybrid Retrieval")
	logger.Debug("query=%q top_k=%d", query, topK)

	exact, err := h.metadataResults(ctx, query)
	if err != nil {
		return nil, err
	}
	similar, err := h.vectorResults(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RetrievalResult, 0, len(exact)+len(similar))
	results = append(results, exact...)
	results = append(results, similar...)
	if limit := topK + Overshoot; len(results) > limit {
		results = results[:limit]
	}
	logger.Debug("retrieval: %d metadata + %d vector -> %d results", len(exact), len(similar), len(results))
	return results, nil
}

func (h *Hybrid) metadataResults(ctx context.Context, query string) ([]domain.RetrievalResult, error) {
	name, ok := ExtractDocumentName(query)
	if !ok {
		return nil, nil
	}
	titles, err := h.store.Titles(ctx)
	if err != nil {
		return nil, unavailable("list titles", err)
	}
	title, score, ok := ResolveTitle(name, titles, h.threshold)
	if !ok {
		logger.Debug("title: %q not resolved (best ratio %.3f)", name, score)
		return nil, nil
	}
	logger.Debug("title: %q resolved to %q (ratio %.3f)", name, title, score)

	entries, err := h.store.Get(ctx, domain.Filter{Title: title})
	if err != nil {
		return nil, unavailable("get "+title, err)
	}
	out := make([]domain.RetrievalResult, len(entries))
	for i, e := range entries {
		out[i] = toResult(e, ExactScore, domain.OriginMetadata)
	}
	return out, nil
}

func (h *Hybrid) vectorResults(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	n, err := h.store.Count(ctx)
	if err != nil {
		return nil, unavailable("count", err)
	}
	if n == 0 {
		return nil, nil
	}
	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, unavailable("embed query", err)
	}
	matches, err := h.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, unavailable("vector query", err)
	}
	out := make([]domain.RetrievalResult, len(matches))
	for i, m := range matches {
		out[i] = toResult(m.Entry, m.Distance, domain.OriginVector)
	}
	return out, nil
}

func toResult(e domain.IndexEntry, score float64, origin domain.Origin) domain.RetrievalResult {
	return domain.RetrievalResult{
		Source:     e.Metadata.Title,
		Score:      score,
		Content:    FilterBoilerplate(e.Document),
		ChunkID:    e.ID,
		ChunkIndex: e.Metadata.ChunkIndex,
		Origin:     origin,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrIndexUnavailable, op, err)
}
