package models

import "strings"

// NormalizeUsername canonicalizes a user-supplied handle so variant
// spellings map to one cache and quota key: surrounding whitespace is
// trimmed, any number of leading "@" markers are stripped, and the rest is
// lowercased. Total function; empty input normalizes to "" and callers
// validate non-emptiness separately.
func NormalizeUsername(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "@")
	s = strings.TrimSpace(s)
	return strings.ToLower(s)
}
