package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// CleanDisplay produces the human-readable cleaned form of a raw MARC
// value: trimmed, trailing ISBD punctuation stripped, surrounding brackets
// removed, NFKC-normalized, internal whitespace collapsed. Case is kept.
func CleanDisplay(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, " \t:,;/")
	s = stripSurroundingBrackets(s)
	s = norm.NFKC.String(s)
	s = collapseWhitespace(s)
	return strings.TrimSpace(s)
}

// CleanKey produces the normalized key: CleanDisplay plus Unicode case
// folding. Keys are what EQ and IN filters compare against.
func CleanKey(raw string) string {
	return foldCaser.String(CleanDisplay(raw))
}

func stripSurroundingBrackets(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
