// Package extract turns source files into domain documents. PDF, DOCX and
// plain text (.txt, .md) are supported; the document title is the file
// name without its extension.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"docrag/internal/domain"
)

// reader returns the raw text of a file and its page count.
type reader func(path string) (text string, pages int, err error)

var readers = map[string]struct {
	format string
	read   reader
}{
	".pdf":  {"PDF", readPDF},
	".docx": {"DOCX", readDOCX},
	".txt":  {"TXT", readPlain},
	".md":   {"MD", readPlain},
}

// leaderRe matches table-of-contents dot leaders.
var leaderRe = regexp.MustCompile(`\.{5,}`)

// Supported reports whether path has an extension Extract can handle.
func Supported(path string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Title derives the document title from a file path.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Extract reads path and returns its cleaned text as a Document.
func Extract(path string) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	r, ok := readers[ext]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s: %w %q", domain.ErrExtraction, path, domain.ErrUnsupportedFormat, ext)
	}
	text, pages, err := r.read(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	text = Clean(text)
	if text == "" {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, path)
	}
	return domain.Document{
		Title: Title(path),
		Text:  text,
		Metadata: domain.DocumentMetadata{
			PageCount:  pages,
			SourceFile: filepath.Base(path),
			Format:     r.format,
		},
		IngestedAt: time.Now().UTC(),
	}, nil
}

// Clean drops dot leaders and surrounding whitespace.
func Clean(text string) string {
	return strings.TrimSpace(leaderRe.ReplaceAllString(text, ""))
}

func readPlain(path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return string(data), 1, nil
}
