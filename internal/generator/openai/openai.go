// Package openai generates answers with the OpenAI chat completions API
// through the official SDK. Any OpenAI-compatible server can be targeted
// with a custom base URL.
package openai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docrag/internal/domain"
)

// DefaultBaseURL is the public OpenAI endpoint, the only one that needs a key.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client implements domain.Generator.
type Client struct {
	client openai.Client
	model  string
}

type Config struct {
	BaseURL string
	// APIKey takes precedence over APIKeyEnv.
	APIKey     string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" && (cfg.BaseURL == "" || strings.HasPrefix(cfg.BaseURL, DefaultBaseURL)) {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &Client{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Ensure Client implements the interface.
var _ domain.Generator = (*Client)(nil)

func (c *Client) Name() string { return "openai/" + c.model }

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chat completion returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}
