package util //nolint:revive // package name util hosts shared formatting helpers used by the admin CLI

import (
	"time"
	"unicode/utf8"
)

// FormatAge formats the time elapsed since t for tabular display, truncated to seconds.
// Returns "-" for a nil or future time.
func FormatAge(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	d := now.Sub(*t)
	if d < 0 {
		return "-"
	}
	if d < time.Second {
		return "0s"
	}
	return d.Truncate(time.Second).String()
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}
