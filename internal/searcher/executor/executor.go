// Package executor evaluates parsed queries against the index engine and
// resolves matching document ids to their text.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/parser"
)

// Engine is the query surface of *indexer.Engine.
type Engine interface {
	Search(ctx context.Context, keyword string) (index.PostingList, error)
	SearchAll(ctx context.Context, keywords []string) ([]uint64, error)
	Document(ctx context.Context, id uint64) (string, error)
}

type Hit struct {
	DocumentID uint64 `json:"document_id"`
	Text       string `json:"text"`
}

type SearchResult struct {
	Query     string   `json:"query"`
	Keywords  []string `json:"keywords"`
	TotalHits int      `json:"total_hits"`
	Results   []Hit    `json:"results"`
}

// Executor turns engine postings into hits. Search metrics are recorded by
// the engine itself.
type Executor struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine) *Executor {
	return &Executor{
		engine: engine,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute runs q and returns at most limit hits. A single keyword keeps the
// engine's tier order (oldest first) with repeated postings collapsed; a
// conjunctive query is ordered by ascending id.
func (e *Executor) Execute(ctx context.Context, q *parser.Query, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Query:    q.Raw,
		Keywords: q.Keywords,
		Results:  []Hit{},
	}
	if q.Empty() {
		return result, nil
	}

	kind := "single"
	var ids []uint64
	var err error
	if q.Conjunctive() {
		kind = "conjunctive"
		ids, err = e.engine.SearchAll(ctx, q.Keywords)
	} else {
		var postings index.PostingList
		postings, err = e.engine.Search(ctx, q.Keywords[0])
		ids = distinct(postings)
	}
	if err != nil {
		return nil, fmt.Errorf("searching %v: %w", q.Keywords, err)
	}

	result.TotalHits = len(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		text, err := e.engine.Document(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving document %d: %w", id, err)
		}
		result.Results = append(result.Results, Hit{DocumentID: id, Text: text})
	}

	e.logger.Debug("query executed",
		"query", q.Raw,
		"keywords", q.Keywords,
		"kind", kind,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

// distinct drops repeated ids, keeping the first occurrence.
func distinct(postings index.PostingList) []uint64 {
	seen := make(map[uint64]struct{}, len(postings))
	out := make([]uint64, 0, len(postings))
	for _, id := range postings {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
