package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
)

// errNotFound marks a 404 from Qdrant.
var errNotFound = errors.New("qdrant: not found")

// pointNamespace derives stable point UUIDs from entry ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docrag/qdrant"))

const scrollPage = 256

// Storage is a minimal REST client to Qdrant.
// It uses Euclid distance and creates the collection on first upsert.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.RWMutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Open connects and reads the vector size of an existing collection.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	s := NewStorage(cfg)
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	switch {
	case errors.Is(err, errNotFound):
		return s, nil
	case err != nil:
		return nil, err
	}
	s.dimension = info.Result.Config.Params.Vectors.Size
	return s, nil
}

// PointID maps an entry id onto the UUID Qdrant stores it under.
func PointID(entryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(entryID)).String()
}

// Ensure Storage implements the interface.
var _ domain.VectorIndex = (*Storage)(nil)

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Euclid",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": "title", "field_schema": "keyword"}
	return s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil)
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.CheckDimension(s.dimension, entries)
	if err != nil {
		return err
	}
	if s.dimension == 0 {
		if err := s.ensureCollection(ctx, dim); err != nil {
			return err
		}
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":      PointID(e.ID),
			"vector":  e.Embedding,
			"payload": toPayload(e),
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return err
	}
	s.dimension = dim
	return nil
}

type point struct {
	ID      any       `json:"id"`
	Score   float64   `json:"score"`
	Payload payload   `json:"payload"`
	Vector  []float64 `json:"vector"`
}

type payload struct {
	EntryID        string `json:"entry_id"`
	Title          string `json:"title"`
	SourceFile     string `json:"source_file"`
	ChunkIndex     int    `json:"chunk_index"`
	TokenLength    int    `json:"token_length"`
	EmbeddingModel string `json:"embedding_model"`
	Document       string `json:"document"`
}

func toPayload(e domain.IndexEntry) payload {
	return payload{
		EntryID:        e.ID,
		Title:          e.Metadata.Title,
		SourceFile:     e.Metadata.SourceFile,
		ChunkIndex:     e.Metadata.ChunkIndex,
		TokenLength:    e.Metadata.TokenLength,
		EmbeddingModel: e.Metadata.EmbeddingModel,
		Document:       e.Document,
	}
}

func (p point) entry() domain.IndexEntry {
	return domain.IndexEntry{
		ID:        p.Payload.EntryID,
		Embedding: p.Vector,
		Document:  p.Payload.Document,
		Metadata: domain.EntryMetadata{
			Title:          p.Payload.Title,
			SourceFile:     p.Payload.SourceFile,
			ChunkIndex:     p.Payload.ChunkIndex,
			TokenLength:    p.Payload.TokenLength,
			EmbeddingModel: p.Payload.EmbeddingModel,
		},
	}
}

func titleFilter(filter domain.Filter) map[string]any {
	if filter.Title == "" {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{"key": "title", "match": map[string]any{"value": filter.Title}},
		},
	}
}

// Get scrolls through every point matching the filter.
func (s *Storage) Get(ctx context.Context, filter domain.Filter) ([]domain.IndexEntry, error) {
	if s.Dimension() == 0 {
		return []domain.IndexEntry{}, nil
	}
	out := make([]domain.IndexEntry, 0)
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": true,
			"with_vector":  true,
		}
		if f := titleFilter(filter); f != nil {
			req["filter"] = f
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, p.entry())
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	vectorstore.SortEntries(out)
	return out, nil
}

// Query returns the k nearest points. With Euclid distance Qdrant reports
// the distance itself as the score.
func (s *Storage) Query(ctx context.Context, vector []float64, k int) ([]domain.Match, error) {
	dim := s.Dimension()
	if dim == 0 || k <= 0 {
		return nil, nil
	}
	if err := vectorstore.CheckQuery(dim, vector); err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []point `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, domain.Match{Entry: p.entry(), Distance: p.Score})
	}
	return out, nil
}

func (s *Storage) Delete(ctx context.Context, filter domain.Filter) error {
	if s.Dimension() == 0 {
		return nil
	}
	f := titleFilter(filter)
	if f == nil {
		f = map[string]any{"must": []any{}}
	}
	return s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": f}, nil)
}

func (s *Storage) Titles(ctx context.Context) ([]string, error) {
	all, err := s.Get(ctx, domain.Filter{})
	if err != nil {
		return nil, err
	}
	return vectorstore.Titles(all), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	if s.Dimension() == 0 {
		return 0, nil
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", errNotFound, method, url)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
