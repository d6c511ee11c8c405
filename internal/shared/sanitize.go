// Text normalization for cross-catalog track search.
package shared

import (
	"regexp"
	"strings"
)

var (
	parenRe   = regexp.MustCompile(`\([^)]*\)`)
	bracketRe = regexp.MustCompile(`\[[^\]]*\]`)
	symbolRe  = regexp.MustCompile(`[^\p{L}\p{N}\s'-]`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// SanitizeQuery cleans text for use in a provider search query.
//
// Parenthesized and bracketed segments (remix info, featured artists) are
// removed entirely, punctuation other than apostrophes and hyphens becomes a
// space, and whitespace runs collapse to a single space. The result is
// idempotent: SanitizeQuery(SanitizeQuery(x)) == SanitizeQuery(x).
func SanitizeQuery(text string) string {
	if text == "" {
		return ""
	}

	text = parenRe.ReplaceAllString(text, "")
	text = bracketRe.ReplaceAllString(text, "")
	text = symbolRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// BuildSearchQuery composes the sanitized "<artist> <track>" query string used
// as the primary search input on destination providers.
func BuildSearchQuery(title, artist string) string {
	return strings.TrimSpace(SanitizeQuery(artist) + " " + SanitizeQuery(title))
}
