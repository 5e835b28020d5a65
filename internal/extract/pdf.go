package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// readPDF returns the plain text of every page. The pdf package panics on
// some malformed inputs; those are reported as errors.
func readPDF(path string) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	pages = rdr.NumPage()
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", pages, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", pages, err
	}
	return buf.String(), pages, nil
}
