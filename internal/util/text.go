package util

import "strings"

// SanitizePostgresText strips invalid UTF-8 and NUL bytes, which Postgres
// text columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// NormalizeWhitespace collapses all runs of whitespace to single spaces and
// trims the result. Used to normalize chunk text before fingerprinting.
func NormalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
