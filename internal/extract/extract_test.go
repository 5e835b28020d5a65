package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func writeDOCX(t *testing.T, dir, name string, paragraphs ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	body := `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	for _, para := range paragraphs {
		body += `<w:p><w:r><w:t>` + para + `</w:t></w:r></w:p>`
	}
	body += `</w:body></w:document>`
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestExtract_Text(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "TS-38.401.txt", "  Contents........ 4\nOverview of the RAN.  \n")

	doc, err := Extract(p)
	require.NoError(t, err)
	assert.Equal(t, "TS-38.401", doc.Title)
	assert.Equal(t, "Contents 4\nOverview of the RAN.", doc.Text)
	assert.Equal(t, "TXT", doc.Metadata.Format)
	assert.Equal(t, "TS-38.401.txt", doc.Metadata.SourceFile)
	assert.Equal(t, 1, doc.Metadata.PageCount)
	assert.False(t, doc.IngestedAt.IsZero())
}

func TestExtract_DOCX(t *testing.T) {
	dir := t.TempDir()
	p := writeDOCX(t, dir, "O-RAN.WG4.docx", "First paragraph.", "Second paragraph.")

	doc, err := Extract(p)
	require.NoError(t, err)
	assert.Equal(t, "O-RAN.WG4", doc.Title)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", doc.Text)
	assert.Equal(t, "DOCX", doc.Metadata.Format)
	assert.Equal(t, 2, doc.Metadata.PageCount)
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Extract(writeFile(t, dir, "slides.pptx", "x"))
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = Extract(writeFile(t, dir, "blank.md", " \n\t "))
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)

	_, err = Extract(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrExtraction)

	_, err = Extract(writeFile(t, dir, "broken.pdf", "not a pdf"))
	assert.ErrorIs(t, err, domain.ErrExtraction)

	_, err = Extract(writeFile(t, dir, "broken.docx", "not a zip"))
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a/b/Manual.PDF"))
	assert.True(t, Supported("notes.md"))
	assert.False(t, Supported("image.png"))
	assert.False(t, Supported("noext"))
}
