package retriever

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultFuzzyThreshold is the similarity a fuzzy title match must exceed.
const DefaultFuzzyThreshold = 0.85

var (
	documentName = regexp.MustCompile(`(?i)\b(?:document|file)\s+([\p{L}\p{N}_.\-]+)`)
	separators   = regexp.MustCompile(`[\s_\-]+`)
)

// ExtractDocumentName finds "document <name>" or "file <name>" in a query.
func ExtractDocumentName(query string) (string, bool) {
	m := documentName.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	name := strings.TrimRight(m[1], ".")
	return name, name != ""
}

// Ratio is the indel similarity of two strings, compared
// case-insensitively: (|a|+|b|-indel)/(|a|+|b|), where indel counts the
// insertions and deletions turning a into b. A substitution costs two.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(2*lcs(ra, rb)) / float64(total)
}

// lcs is the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func normalizeTitle(s string) string {
	return separators.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
}

// ResolveTitle maps a candidate name onto a known title. An exact match
// wins, then a match after case and separator normalisation, then the
// most similar title whose Ratio is strictly above threshold. Equal
// ratios resolve to the title with the smaller edit distance, then to the
// lexicographically first title.
func ResolveTitle(candidate string, titles []string, threshold float64) (string, float64, bool) {
	for _, t := range titles {
		if t == candidate {
			return t, 1, true
		}
	}
	norm := normalizeTitle(candidate)
	for _, t := range titles {
		if normalizeTitle(t) == norm {
			return t, 1, true
		}
	}
	best, bestScore, bestDist := "", -1.0, 0
	for _, t := range titles {
		score := Ratio(candidate, t)
		if score < bestScore {
			continue
		}
		dist := levenshtein.ComputeDistance(strings.ToLower(candidate), strings.ToLower(t))
		if score > bestScore || dist < bestDist || (dist == bestDist && t < best) {
			best, bestScore, bestDist = t, score, dist
		}
	}
	if best == "" || bestScore <= threshold {
		return "", bestScore, false
	}
	return best, bestScore, true
}
