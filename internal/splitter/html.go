package splitter

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// stripTags drops HTML markup from a section, keeping only text content
// with runs of whitespace collapsed to single spaces.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	}

	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.WriteString(string(tok.Text()))
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}
