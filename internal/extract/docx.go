package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// documentXML is the subset of word/document.xml that carries text.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

// readDOCX joins the paragraphs of word/document.xml with newlines. The
// paragraph count stands in for the page count, which DOCX does not store.
func readDOCX(path string) (string, int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", 0, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", 0, err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", 0, err
		}
		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", 0, fmt.Errorf("parse document.xml: %w", err)
		}
		var sb strings.Builder
		for i, p := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, r := range p.Runs {
				for _, t := range r.Text {
					sb.WriteString(t.Content)
				}
			}
		}
		return sb.String(), len(doc.Body.Paragraphs), nil
	}
	return "", 0, errors.New("word/document.xml not found")
}
