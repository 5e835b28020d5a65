package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.2", body["model"])
		assert.Equal(t, "the prompt", body["prompt"])
		assert.Equal(t, false, body["stream"])
		_, _ = w.Write([]byte(`{"response":"generated text","done":true}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL + "/", Model: "llama3.2"})
	out, err := c.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)
	assert.Equal(t, "ollama/llama3.2", c.Name())
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `model not loaded`},
		{"error field", http.StatusOK, `{"error":"out of memory"}`},
		{"empty response", http.StatusOK, `{"response":"  "}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL, Model: "m"}).Generate(context.Background(), "p")
			assert.Error(t, err)
		})
	}
}
