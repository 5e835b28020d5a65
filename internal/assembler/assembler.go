// Package assembler renders retrieved chunks and a query into a prompt
// and hands it to a generator. It does no ranking or filtering.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/retry"
)

const (
	contextHeader  = "### Retrieved Context:\n"
	queryHeader    = "\n\n### Query:\n"
	expectedHeader = "\n\n### Expected Output:\n"
)

const instructions = `### Instructions for LLM:
- Only answer based on the retrieved context.
- Keep the roles of distinct components apart; do not merge them.
- Say so when the context does not contain the answer.

`

const expected = "Provide a structured and accurate response strictly from the context.\n"

// BuildContext joins results as "Source: <title>\n<content>" blocks.
func BuildContext(results []domain.RetrievalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Source: %s\n%s", r.Source, r.Content)
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt renders the instruction template around a context block and query.
func BuildPrompt(query, contextBlock string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString(contextHeader)
	b.WriteString(contextBlock)
	b.WriteString(queryHeader)
	b.WriteString(strings.TrimSpace(query))
	b.WriteString(expectedHeader)
	b.WriteString(expected)
	return b.String()
}

// SplitPrompt recovers the context block and query from a prompt made by
// BuildPrompt.
func SplitPrompt(prompt string) (contextBlock, query string, ok bool) {
	ci := strings.Index(prompt, contextHeader)
	qi := strings.LastIndex(prompt, queryHeader)
	ei := strings.LastIndex(prompt, expectedHeader)
	if ci < 0 || qi < ci || ei < qi {
		return "", "", false
	}
	return prompt[ci+len(contextHeader) : qi], prompt[qi+len(queryHeader) : ei], true
}

// Assembler forwards prompts to a generator.
type Assembler struct {
	generator domain.Generator
}

func New(g domain.Generator) *Assembler {
	return &Assembler{generator: g}
}

// Answer generates a response for query from results. If the generator
// fails, the context is halved once and the call retried.
func (a *Assembler) Answer(ctx context.Context, query string, results []domain.RetrievalResult) (domain.Answer, error) {
	policy := retry.Policy{Attempts: 2, Shrink: halve}
	var prompt string
	text, st, err := retry.Do(ctx, policy, BuildContext(results), func(ctx context.Context, block string) (string, error) {
		prompt = BuildPrompt(query, block)
		return a.generator.Generate(ctx, prompt)
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Answer{}, ctx.Err()
		}
		return domain.Answer{}, fmt.Errorf("%w: %s: %w", domain.ErrGeneration, a.generator.Name(), err)
	}
	if st.N > 1 {
		logger.Debug("generation succeeded with truncated context (%d chars)", len(st.Input))
	}
	return domain.Answer{Query: query, Text: strings.TrimSpace(text), Prompt: prompt, Context: results}, nil
}

func halve(s string) string {
	r := []rune(s)
	return string(r[:len(r)/2])
}
