package retriever

import (
	"regexp"
	"strings"
)

// boilerplate marks the start of legal text appended to many standards
// documents. Markers match anywhere, so "IPRs" and "Copyright2023" count.
var boilerplate = regexp.MustCompile(`(?i)(?:IPR|copyright|patents|trademarks|terms of use)`)

// FilterBoilerplate drops everything from the first boilerplate marker to
// the end of text and trims surrounding whitespace. Text that starts with
// a marker becomes empty.
func FilterBoilerplate(text string) string {
	if loc := boilerplate.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}
