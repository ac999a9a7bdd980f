package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/redis"
)

type fakeExecutor struct {
	calls int
	limit int
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, q *parser.Query, limit int) (*executor.SearchResult, error) {
	f.calls++
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return &executor.SearchResult{
		Query:     q.Raw,
		Keywords:  q.Keywords,
		TotalHits: 1,
		Results:   []executor.Hit{{DocumentID: 0, Text: "Hello my name is Alice"}},
	}, nil
}

type fakeStats struct{}

func (fakeStats) Stats() indexer.Stats {
	return indexer.Stats{LiveSegments: 3, CompactorState: "IDLE"}
}

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m mapStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m[key] = string(value.([]byte))
	return nil
}

func (m mapStore) FlushByPattern(context.Context, string) (int64, error) {
	n := int64(len(m))
	for k := range m {
		delete(m, k)
	}
	return n, nil
}

func get(t *testing.T, h http.HandlerFunc, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestSearch(t *testing.T) {
	ex := &fakeExecutor{}
	h := New(ex, nil, nil, 10, 100)

	rec, body := get(t, h.Search, "/api/v1/search?q=Alice+Hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice Hello", body["query"])
	assert.Equal(t, []any{"Alice", "Hello"}, body["keywords"])
	assert.Equal(t, float64(1), body["total_hits"])
	assert.Equal(t, 10, ex.limit)

	get(t, h.Search, "/api/v1/search?q=Hello&limit=500")
	assert.Equal(t, 100, ex.limit, "limit is capped")
}

func TestSearchBadRequests(t *testing.T) {
	ex := &fakeExecutor{}
	h := New(ex, nil, nil, 10, 100)

	rec, _ := get(t, h.Search, "/api/v1/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, h.Search, "/api/v1/search?q=a&limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, h.Search, "/api/v1/search?q=a&limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := get(t, h.Search, "/api/v1/search?q=+++")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["results"])
	assert.Equal(t, 0, ex.calls)
}

func TestSearchFailureStatus(t *testing.T) {
	h := New(&fakeExecutor{err: apperrors.ErrCatalogInconsistency}, nil, nil, 10, 100)
	rec, body := get(t, h.Search, "/api/v1/search?q=a")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "search failed", body["error"])

	h = New(&fakeExecutor{err: apperrors.ErrClosed}, nil, nil, 10, 100)
	rec, _ = get(t, h.Search, "/api/v1/search?q=a")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchUsesCache(t *testing.T) {
	ex := &fakeExecutor{}
	qc := cache.New(mapStore{}, time.Minute, func() string { return "v1" }, nil)
	h := New(ex, qc, nil, 10, 100)

	get(t, h.Search, "/api/v1/search?q=Hello+Alice")
	rec, body := get(t, h.Search, "/api/v1/search?q=Alice+Hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice Hello", body["query"])
	assert.Equal(t, 1, ex.calls)

	_, stats := get(t, h.CacheStats, "/api/v1/cache/stats")
	assert.Equal(t, float64(1), stats["hits"])
	assert.Equal(t, float64(1), stats["misses"])
	assert.Equal(t, "50.0%", stats["hit_rate"])

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	get(t, h.Search, "/api/v1/search?q=Alice+Hello")
	assert.Equal(t, 2, ex.calls)
}

func TestCacheDisabled(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, 10, 100)
	_, body := get(t, h.CacheStats, "/api/v1/cache/stats")
	assert.Equal(t, "disabled", body["status"])

	rec := httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIndexStats(t *testing.T) {
	h := New(&fakeExecutor{}, nil, fakeStats{}, 10, 100)
	rec, body := get(t, h.IndexStats, "/api/v1/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["live_segments"])
	assert.Equal(t, "IDLE", body["compactor_state"])
}
