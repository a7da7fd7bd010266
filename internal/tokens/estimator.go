// Package tokens provides a heuristic token count for display metrics.
package tokens

import "regexp"

// A token is a maximal run of word characters, or a single
// non-whitespace punctuation/symbol character. This mirrors how most
// BPE tokenizers split at a coarse level, but it is only an
// approximation for metrics display, not a real tokenizer.
var tokenPattern = regexp.MustCompile(`\w+|[^\w\s]`)

// Estimate returns the approximate token count of text.
// Deterministic; returns 0 for empty input.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(tokenPattern.FindAllStringIndex(text, -1))
}
