// Package chunker splits extracted document text into overlapping chunks.
//
// Two strategies share one sliding-window algorithm: CharChunker works on
// rune offsets, TokenChunker on tokenizer ids. A window of size units
// advances by size-overlap units while its start lies inside the input,
// so the final partial window is emitted even when it only repeats the
// tail of the previous one.
package chunker

import (
	"fmt"

	"docrag/internal/domain"
)

// minAdaptiveSize is the smallest window AdjustChunkSize returns for short documents.
const minAdaptiveSize = 300

// Window is a half-open [Start, End) span over the unit sequence.
type Window struct {
	Start int
	End   int
}

// Windows returns the sliding windows over n units.
func Windows(n, size, overlap int) ([]Window, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	step := size - overlap
	out := make([]Window, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out, nil
}

func validateWindow(size, overlap int) error {
	if size <= 0 || overlap < 0 || size <= overlap {
		return fmt.Errorf("%w: chunk size %d must exceed overlap %d", domain.ErrInvalidInput, size, overlap)
	}
	return nil
}

// Split cuts text into rune windows.
func Split(text string, size, overlap int) ([]string, error) {
	runes := []rune(text)
	wins, err := Windows(len(runes), size, overlap)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(wins))
	for i, w := range wins {
		out[i] = string(runes[w.Start:w.End])
	}
	return out, nil
}

// AdjustChunkSize rescales the window for outlier document lengths:
// short documents get max(300, total/3), documents longer than ten
// windows get a doubled window, everything else keeps defaultSize.
func AdjustChunkSize(totalLength, defaultSize int) int {
	switch {
	case totalLength < defaultSize:
		return max(minAdaptiveSize, totalLength/3)
	case totalLength > 10*defaultSize:
		return defaultSize * 2
	default:
		return defaultSize
	}
}

// Paginate splits chunks into pages of at most pageSize once their count
// exceeds threshold. Below the threshold a single page is returned.
// Chunk identity is untouched.
func Paginate(chunks []domain.Chunk, threshold, pageSize int) [][]domain.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) <= threshold || pageSize <= 0 {
		return [][]domain.Chunk{chunks}
	}
	pages := make([][]domain.Chunk, 0, len(chunks)/pageSize+1)
	for start := 0; start < len(chunks); start += pageSize {
		end := min(start+pageSize, len(chunks))
		pages = append(pages, chunks[start:end])
	}
	return pages
}
