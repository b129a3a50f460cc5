package validation

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy *bluemonday.Policy

func init() {
	strictHTMLPolicy = bluemonday.StrictPolicy() // Removes all HTML tags
}

// SanitizeText removes all HTML tags and attributes from an input string,
// preventing XSS before saving to the database.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// NormalizeSymbol prepares a user-entered ticker for lookup and storage:
// sanitized, trimmed, uppercased.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(SanitizeText(s)))
}
