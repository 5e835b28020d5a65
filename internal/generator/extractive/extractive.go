// Package extractive answers offline by picking the highest-ranked
// sentences of the retrieved context. Sentences are scored by normalised
// term frequency over the context plus a boost for query terms.
package extractive

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"docrag/internal/assembler"
	"docrag/internal/domain"
)

// NoAnswer is returned when the prompt carries no usable context.
const NoAnswer = "The retrieved context does not contain an answer."

var (
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`)
	sourceLine      = regexp.MustCompile(`(?m)^Source: (.*)$`)
)

// Generator implements domain.Generator without a model.
type Generator struct {
	maxSentences int
	queryBoost   float64
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates an extractive generator keeping at most maxSentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &Generator{
		maxSentences: maxSentences,
		queryBoost:   1.0,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Ensure Generator implements the interface.
var _ domain.Generator = (*Generator)(nil)

func (g *Generator) Name() string { return "extractive" }

type sentence struct {
	source string
	text   string
	score  float64
	idx    int
}

// Generate summarises the context block of a prompt built by the
// assembler. Any other prompt is summarised as a whole.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	block, query, ok := assembler.SplitPrompt(prompt)
	if !ok {
		block = prompt
	}
	sentences := g.split(block)
	if len(sentences) == 0 {
		return NoAnswer, nil
	}

	// Compute word frequencies
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range g.tokens(s.text) {
			freq[tok]++
		}
	}
	// Normalize frequencies
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}
	queryTerms := map[string]struct{}{}
	for _, tok := range g.tokens(query) {
		queryTerms[tok] = struct{}{}
	}

	for i := range sentences {
		toks := g.tokens(sentences[i].text)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
			if _, ok := queryTerms[tok]; ok {
				score += g.queryBoost
			}
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		sentences[i].score = score
	}

	ranked := append([]sentence(nil), sentences...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	keep := min(g.maxSentences, len(ranked))
	selected := ranked[:keep]
	// Keep original order among selected
	sort.Slice(selected, func(i, j int) bool { return selected[i].idx < selected[j].idx })

	texts := make([]string, len(selected))
	var sources []string
	seen := map[string]struct{}{}
	for i, s := range selected {
		texts[i] = s.text
		if _, ok := seen[s.source]; !ok && s.source != "" {
			seen[s.source] = struct{}{}
			sources = append(sources, s.source)
		}
	}
	out := strings.Join(texts, " ")
	if len(sources) > 0 {
		out += fmt.Sprintf("\n\nSources: %s", strings.Join(sources, ", "))
	}
	return out, nil
}

// split breaks the context into sentences tagged with their source.
func (g *Generator) split(block string) []sentence {
	var out []sentence
	source := ""
	lines := strings.Split(block, "\n")
	var body strings.Builder
	flush := func() {
		for _, raw := range sentencePattern.FindAllString(body.String()+"\n", -1) {
			text := strings.TrimSpace(raw)
			if len(g.tokens(text)) == 0 {
				continue
			}
			out = append(out, sentence{source: source, text: text, idx: len(out)})
		}
		body.Reset()
	}
	for _, line := range lines {
		if m := sourceLine.FindStringSubmatch(line); m != nil {
			flush()
			source = strings.TrimSpace(m[1])
			continue
		}
		body.WriteString(line)
		body.WriteString(" ")
	}
	flush()
	return out
}

func (g *Generator) tokens(text string) []string {
	raw := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := g.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "how", "does", "do", "which", "who", "why", "when", "where",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
