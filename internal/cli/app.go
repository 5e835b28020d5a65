package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docrag/internal/artifact"
	"docrag/internal/assembler"
	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/embedding/hashing"
	embopenai "docrag/internal/embedding/openai"
	"docrag/internal/generator/extractive"
	"docrag/internal/generator/ollama"
	genopenai "docrag/internal/generator/openai"
	"docrag/internal/index"
	"docrag/internal/retriever"
	"docrag/internal/service"
	"docrag/internal/vectorstore/memory"
	"docrag/internal/vectorstore/qdrant"
	"docrag/internal/vectorstore/sqlite"
)

// App holds the components assembled from one configuration.
type App struct {
	Config  *config.AppConfig
	Service *service.RAGService
	Index   *index.Manager
}

// NewApp assembles every component named by cfg.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg)
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		idx.Close()
		return nil, err
	}
	store, err := artifact.NewStore(cfg.DataDir)
	if err != nil {
		idx.Close()
		return nil, err
	}

	mgr := index.NewManager(idx)
	orch := embedding.NewOrchestrator(emb,
		embedding.WithWorkers(cfg.Embedder.Workers),
		embedding.WithRateLimit(cfg.Embedder.RequestsPerSecond),
		embedding.WithFirstChars(cfg.Embedder.MaxChars),
		embedding.WithRetryChars(cfg.Embedder.RetryChars),
	)
	ret := retriever.NewHybrid(mgr, emb, retriever.WithFuzzyThreshold(cfg.Retriever.FuzzyThreshold))
	svc := service.NewRAGService(ch, orch, mgr, ret, assembler.New(gen),
		service.WithArtifacts(store),
		service.WithPaging(cfg.Chunker.PageThreshold, cfg.Chunker.PageSize),
	)
	return &App{Config: cfg, Service: svc, Index: mgr}, nil
}

// Close flushes and releases the index.
func (a *App) Close() error {
	return a.Index.Index().Close()
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			MaxChars:  cfg.Embedder.MaxChars,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "char", "":
		return chunker.NewCharChunker(
			chunker.WithSize(cfg.Chunker.Size),
			chunker.WithOverlap(cfg.Chunker.Overlap),
			chunker.WithAdaptive(cfg.Chunker.Adaptive),
		), nil
	case "token":
		tok, err := chunker.NewTiktoken(cfg.Chunker.Encoding)
		if err != nil {
			return nil, err
		}
		return chunker.NewTokenChunker(tok, cfg.Chunker.Size, cfg.Chunker.Overlap)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func openIndex(ctx context.Context, cfg *config.AppConfig) (domain.VectorIndex, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory", "":
		if vs.Memory == nil || vs.Memory.Path == "" {
			return memory.NewStorage(), nil
		}
		return memory.Open(vs.Memory.Path)
	case "sqlite":
		if vs.SQLite == nil {
			return nil, fmt.Errorf("sqlite config missing")
		}
		return sqlite.Open(vs.SQLite.Path)
	case "qdrant":
		if vs.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.Open(ctx, qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.Qdrant.Collection,
			Timeout:    time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}

// openIndexFile opens a partition file for merging: SQLite databases by
// their .db extension, memory snapshots otherwise.
func openIndexFile(path string) (domain.VectorIndex, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		return sqlite.Open(path)
	default:
		return memory.Open(path)
	}
}

func newGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	g := cfg.Generator
	switch g.Type {
	case "extractive", "":
		return extractive.New(g.MaxSentences), nil
	case "ollama":
		if g.Ollama == nil {
			return nil, fmt.Errorf("ollama generator config missing")
		}
		return ollama.NewClient(ollama.Config{
			URL:     g.Ollama.URL,
			Model:   g.Ollama.Model,
			Timeout: time.Duration(g.Ollama.TimeoutSecs) * time.Second,
		}), nil
	case "openai":
		if g.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		return genopenai.NewClient(genopenai.Config{
			BaseURL:   g.OpenAI.BaseURL,
			APIKeyEnv: g.OpenAI.APIKeyEnv,
			Model:     g.OpenAI.Model,
			Timeout:   time.Duration(g.OpenAI.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", g.Type)
	}
}
