// Package parser turns a raw query string into the keyword set the engine
// evaluates conjunctively.
package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/tokenizer"
)

type Query struct {
	// Keywords are distinct, in order of first appearance.
	Keywords []string
	Raw      string
}

// Parse tokenizes query exactly like documents are tokenized, so a keyword
// matches only when it is byte-identical to an indexed token.
func Parse(query string) *Query {
	return &Query{
		Keywords: tokenizer.Unique(tokenizer.Tokenize(query)),
		Raw:      query,
	}
}

func (q *Query) Empty() bool {
	return len(q.Keywords) == 0
}

// Conjunctive reports whether the query names more than one keyword.
func (q *Query) Conjunctive() bool {
	return len(q.Keywords) > 1
}

// Canonical is an order-independent form of the keyword set, suitable as a
// cache key. Keywords never contain whitespace, so a space is a safe
// separator.
func (q *Query) Canonical() string {
	sorted := append([]string(nil), q.Keywords...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
