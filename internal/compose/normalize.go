package compose

import (
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t\f\v]*\n`)

// FixLineBreaks rewraps generated text so that every paragraph is a single
// line, with paragraphs separated by exactly one blank line. Line breaks and
// whitespace runs inside a paragraph collapse to single spaces; empty
// paragraphs are dropped. Applying it twice gives the same result as once.
func FixLineBreaks(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if clean := strings.Join(strings.Fields(p), " "); clean != "" {
			paragraphs = append(paragraphs, clean)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
