package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func newTestClient(t *testing.T, url string, maxChars int) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, Model: "test-embed", Timeout: 2 * time.Second, MaxChars: maxChars})
	require.NoError(t, err)
	return c
}

func TestEmbed_OpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-embed", body["model"])
		assert.Equal(t, "hello", body["input"])
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 3, c.Dimension())
	assert.Equal(t, "test-embed", c.Name())
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v)
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "context length exceeded", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Contains(t, err.Error(), "context length exceeded")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_RejectsOversizedAndEmptyInput(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", 8)

	_, err := c.Embed(context.Background(), strings.Repeat("a", 9))
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	_, err = c.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestEmbed_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv.URL, 0).Embed(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_RequiresKeyForPublicAPI(t *testing.T) {
	t.Setenv("DOCRAG_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCRAG_TEST_KEY"})
	assert.Error(t, err)

	t.Setenv("DOCRAG_TEST_KEY", "sk-test")
	c, err := NewClient(Config{APIKeyEnv: "DOCRAG_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "sk-test", c.apiKey)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	assert.Equal(t, 3*time.Second, lastDelay(&statusError{retryAfter: 3 * time.Second}, 0))
}
