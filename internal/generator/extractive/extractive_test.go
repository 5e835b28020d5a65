package extractive

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/assembler"
	"docrag/internal/domain"
)

func TestGenerate_PrefersQueryTerms(t *testing.T) {
	results := []domain.RetrievalResult{
		{Source: "Guide-A", Content: "The radio unit is synchronised with PTP. Power supply is out of scope."},
		{Source: "Guide-B", Content: "Fronthaul latency must stay below the delay budget. Cabling colours are informative."},
	}
	prompt := assembler.BuildPrompt("How is the radio unit synchronised?", assembler.BuildContext(results))

	out, err := New(1).Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "The radio unit is synchronised with PTP."), out)
	assert.True(t, strings.HasSuffix(out, "Sources: Guide-A"), out)
}

func TestGenerate_KeepsOriginalOrder(t *testing.T) {
	block := "Source: doc\nAlpha timing rule. Beta timing rule. Gamma unrelated note."
	prompt := assembler.BuildPrompt("timing rule", block)

	out, err := New(2).Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "Alpha timing rule. Beta timing rule.\n\nSources: doc", out)
}

func TestGenerate_NoContext(t *testing.T) {
	out, err := New(3).Generate(context.Background(), assembler.BuildPrompt("anything", ""))
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, out)
}

func TestGenerate_FreeFormPrompt(t *testing.T) {
	out, err := New(5).Generate(context.Background(), "Plain text without template. Second sentence here.")
	require.NoError(t, err)
	assert.Equal(t, "Plain text without template. Second sentence here.", out)
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(1).Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
