// Package fingerprint derives stable cache keys from natural-language
// queries. Two queries that normalize identically are treated as the same
// intent by every downstream consumer; collisions between genuinely
// different intents are an accepted approximation, not an error.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fillerTokens are stripped as whole tokens only. The list is deliberately
// small: anything that could change command intent stays in the query.
var fillerTokens = map[string]struct{}{
	"please": {},
	"pls":    {},
	"plz":    {},
	"kindly": {},
	"hey":    {},
	"hi":     {},
	"hello":  {},
}

// Normalize lowercases the query, strips filler tokens and trailing
// punctuation, and collapses runs of whitespace. It is idempotent:
// Normalize(Normalize(q)) == Normalize(q).
func Normalize(query string) string {
	lowered := strings.ToLower(strings.TrimSpace(query))
	if lowered == "" {
		return ""
	}

	fields := strings.Fields(lowered)
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimRight(field, ".?!,;:")
		if token == "" {
			continue
		}
		if _, filler := fillerTokens[token]; filler {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// Key returns the cache fingerprint for a query: the hex form of the
// first 16 bytes of sha256 over the normalized text. An empty normalized
// query yields an empty key, which callers must reject before storing.
func Key(query string) string {
	normalized := Normalize(query)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}
