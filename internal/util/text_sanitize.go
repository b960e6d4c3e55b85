package util

import (
	"strings"
)

// SanitizeText removes NUL bytes and control characters, which some report
// exports leave inside table cells and which Postgres text columns reject.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// CleanCell sanitises a table cell and folds all whitespace runs, including
// non-breaking spaces, into single spaces.
func CleanCell(s string) string {
	s = strings.ReplaceAll(SanitizeText(s), "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
