package utils

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseNumber attempts numeric coercion of a raw text field.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseIcon coerces an icon code; non-numeric values collapse to 0.
func ParseIcon(s string) int {
	f, ok := ParseNumber(s)
	if !ok {
		return 0
	}
	return int(f)
}

// Truncate bounds s to max characters. Counting runes rather than bytes
// keeps multibyte text, like Vietnamese place names, from being cut
// mid-character into invalid UTF-8.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// DefaultIfEmpty substitutes def when s is empty after trimming.
func DefaultIfEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
