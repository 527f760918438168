package textutil

import (
	"strings"
	"unicode/utf8"
)

// fieldReplacer maps record separators to spaces.
var fieldReplacer = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// FlattenField puts a value on one line so it can sit in a tab-separated
// record. It reports whether anything was replaced.
func FlattenField(value string) (string, bool) {
	if !strings.ContainsAny(value, "\r\n\t") {
		return value, false
	}
	return fieldReplacer.Replace(value), true
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
