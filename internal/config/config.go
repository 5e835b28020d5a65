package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
// It also speaks the Ollama /api/embeddings response shape.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type              string                `yaml:"type"`
	Dimension         int                   `yaml:"dimension"`
	Workers           int                   `yaml:"workers"`
	RequestsPerSecond float64               `yaml:"requests_per_second"`
	MaxChars          int                   `yaml:"max_chars"`
	RetryChars        int                   `yaml:"retry_chars"`
	OpenAI            *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type          string `yaml:"type"`
	Size          int    `yaml:"size"`
	Overlap       int    `yaml:"overlap"`
	Adaptive      bool   `yaml:"adaptive"`
	Encoding      string `yaml:"encoding"`
	PageThreshold int    `yaml:"page_threshold"`
	PageSize      int    `yaml:"page_size"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Memory *MemoryConfig `yaml:"memory,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// MemoryConfig points the in-memory index at its JSON snapshot.
type MemoryConfig struct {
	Path string `yaml:"path"`
}

// SQLiteConfig contains the database file for the SQLite index.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrieverConfig configures hybrid retrieval.
type RetrieverConfig struct {
	TopK           int     `yaml:"top_k"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// OllamaConfig configures the Ollama generator.
type OllamaConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIGeneratorConfig configures chat completions.
type OpenAIGeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string                 `yaml:"type"`
	MaxSentences int                    `yaml:"max_sentences"`
	Ollama       *OllamaConfig          `yaml:"ollama,omitempty"`
	OpenAI       *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir     string            `yaml:"data_dir"`
	LogFile     string            `yaml:"log_file"`
	Verbose     bool              `yaml:"verbose"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Generator   GeneratorConfig   `yaml:"generator"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/docrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports settings that would make the pipeline misbehave.
func (c *AppConfig) Validate() error {
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, size), got %d with size %d", c.Chunker.Overlap, c.Chunker.Size)
	}
	switch c.Chunker.Type {
	case "char", "token":
	default:
		return fmt.Errorf("unknown chunker: %s", c.Chunker.Type)
	}
	if c.Embedder.RetryChars > c.Embedder.MaxChars {
		return fmt.Errorf("embedder.retry_chars (%d) exceeds max_chars (%d)", c.Embedder.RetryChars, c.Embedder.MaxChars)
	}
	if c.Retriever.TopK <= 0 {
		return fmt.Errorf("retriever.top_k must be positive, got %d", c.Retriever.TopK)
	}
	if c.Retriever.FuzzyThreshold <= 0 || c.Retriever.FuzzyThreshold > 1 {
		return fmt.Errorf("retriever.fuzzy_threshold must be in (0, 1], got %v", c.Retriever.FuzzyThreshold)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docrag"
	}
	return filepath.Join(home, ".local", "share", "docrag")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "char"
		cfg.Chunker.Adaptive = true
	}
	// An explicit size with no overlap means no overlap.
	if cfg.Chunker.Size == 0 {
		if cfg.Chunker.Type == "token" {
			cfg.Chunker.Size = 512
		} else {
			cfg.Chunker.Size = 1200
		}
		switch {
		case cfg.Chunker.Overlap != 0:
		case cfg.Chunker.Type == "token":
			cfg.Chunker.Overlap = 100
		default:
			cfg.Chunker.Overlap = 150
		}
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "r50k_base"
	}
	if cfg.Chunker.PageThreshold == 0 {
		cfg.Chunker.PageThreshold = 5000
	}
	if cfg.Chunker.PageSize == 0 {
		cfg.Chunker.PageSize = 2000
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Workers == 0 {
		cfg.Embedder.Workers = 4
	}
	if cfg.Embedder.MaxChars == 0 {
		cfg.Embedder.MaxChars = 1024
	}
	if cfg.Embedder.RetryChars == 0 {
		cfg.Embedder.RetryChars = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	switch cfg.VectorStore.Type {
	case "memory":
		if cfg.VectorStore.Memory == nil {
			cfg.VectorStore.Memory = &MemoryConfig{}
		}
		if cfg.VectorStore.Memory.Path == "" {
			cfg.VectorStore.Memory.Path = filepath.Join(cfg.DataDir, "index.json")
		}
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = filepath.Join(cfg.DataDir, "index.db")
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "docrag"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 30
		}
	}

	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Retriever.FuzzyThreshold == 0 {
		cfg.Retriever.FuzzyThreshold = 0.85
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 5
	}
	switch cfg.Generator.Type {
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		if cfg.Generator.Ollama.URL == "" {
			cfg.Generator.Ollama.URL = "http://localhost:11434"
		}
		if cfg.Generator.Ollama.Model == "" {
			cfg.Generator.Ollama.Model = "llama3.2"
		}
		if cfg.Generator.Ollama.TimeoutSecs == 0 {
			cfg.Generator.Ollama.TimeoutSecs = 120
		}
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Generator.OpenAI.TimeoutSecs == 0 {
			cfg.Generator.OpenAI.TimeoutSecs = 60
		}
	}
}
