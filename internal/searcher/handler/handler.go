package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/logger"
)

type SearchExecutor interface {
	Execute(ctx context.Context, q *parser.Query, limit int) (*executor.SearchResult, error)
}

// StatsSource is satisfied by *indexer.Engine.
type StatsSource interface {
	Stats() indexer.Stats
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	stats        StatsSource
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a search handler. queryCache and stats may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, stats StatsSource, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		stats:        stats,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	q := parser.Parse(query)
	if q.Empty() {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:    query,
			Keywords: []string{},
			Results:  []executor.Hit{},
		})
		return
	}

	var result *executor.SearchResult
	var err error
	cacheHit := false

	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, q, limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, q, limit)
		})
	} else {
		result, err = h.executor.Execute(ctx, q, limit)
	}

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}
	// shared with other singleflight callers, so copy before echoing the query
	out := *result
	out.Query = query

	log.Info("search completed",
		"query", query,
		"keywords", len(q.Keywords),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, &out)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// IndexStats reports memtable, catalog and compactor counters.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, http.StatusServiceUnavailable, "index stats unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
