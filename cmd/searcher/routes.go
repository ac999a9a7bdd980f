package main

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/middleware"
)

// services are the dependencies the HTTP surface is built from. queue,
// cache and metrics are optional.
type services struct {
	engine  *indexer.Engine
	queue   ingesthandler.Enqueuer
	cache   *cache.QueryCache
	checker *health.Checker
	metrics *metrics.Metrics
	search  config.SearchConfig
	timeout time.Duration
}

func newRouter(s services) http.Handler {
	searchH := handler.New(executor.New(s.engine), s.cache, s.engine, s.search.DefaultLimit, s.search.MaxResults)
	ingestH := ingesthandler.New(s.engine, s.queue)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", ingestH.Ingest)
	mux.HandleFunc("GET /api/v1/documents/{id}", ingestH.Get)
	mux.HandleFunc("GET /api/v1/search", searchH.Search)
	mux.HandleFunc("GET /api/v1/stats", searchH.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", searchH.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", searchH.CacheInvalidate)
	mux.HandleFunc("GET /health/live", s.checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", s.checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	if s.timeout > 0 {
		chain = middleware.Timeout(s.timeout)(chain)
	}
	chain = middleware.Metrics(s.metrics)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
