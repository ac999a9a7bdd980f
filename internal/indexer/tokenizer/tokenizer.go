// Package tokenizer splits document text into the keywords the index stores.
// Tokens are whitespace-delimited and kept verbatim: case and punctuation are
// significant, so "Hello" and "hello," are different keywords.
package tokenizer

import "strings"

// Tokenize returns the keywords of text in order of occurrence. Repeated
// words are returned once per occurrence; empty tokens never appear.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Unique returns the distinct keywords of the given tokens, keeping first
// occurrence order.
func Unique(tokens []string) []string {
	if len(tokens) <= 1 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
