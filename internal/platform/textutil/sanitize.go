package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
)

var plainPolicy = bluemonday.StrictPolicy()

// SanitizePlain strips markup from free-text input, trims whitespace, and
// clamps the result to max runes. A non-positive max means no limit.
func SanitizePlain(value string, max int) string {
	cleaned := strings.TrimSpace(plainPolicy.Sanitize(value))
	if max > 0 {
		runes := []rune(cleaned)
		if len(runes) > max {
			cleaned = strings.TrimSpace(string(runes[:max]))
		}
	}
	return cleaned
}

// FoldKey lowercases the value using full Unicode case folding, producing a
// stable comparison key for names.
func FoldKey(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}
