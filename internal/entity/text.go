package entity

import (
	"strings"
	"unicode/utf8"
)

// ClipText returns s as valid UTF-8 without NUL bytes, cut to at most n bytes
// on a rune boundary. Postgres TEXT columns reject invalid UTF-8 and NUL.
func ClipText(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
