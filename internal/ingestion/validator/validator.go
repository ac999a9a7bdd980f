// Package validator provides input validation for ingestion requests and
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion"
)

const maxTextLength = 1048576

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest rejects documents that would index nothing or exceed
// the size limit.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)
	switch {
	case len(tokenizer.Tokenize(req.Text)) == 0:
		errs["text"] = "text is required and must contain at least one keyword"
	case len(req.Text) > maxTextLength:
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
