// Package cache stores search results in Redis. Keys embed the engine
// version, which changes on every ingestion and on every restart, so older
// entries become unreachable and simply expire.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store      Store
	ttl        time.Duration
	version    func() string
	group      singleflight.Group
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

// New creates a cache whose entries live for ttl. version is usually
// (*indexer.Engine).Version.
func New(store Store, ttl time.Duration, version func() string, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:      store,
		ttl:        ttl,
		version:    version,
		metrics:    m,
		logger:     slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for q, or runs computeFn once for
// all concurrent callers asking the same question. Cache failures degrade to
// computing; only computeFn errors are returned.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	q *parser.Query,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := c.buildKey(q, limit)
	if result, ok := c.get(ctx, key); ok {
		c.record(true)
		return result, true, nil
	}
	c.record(false)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.ObserveCache(hit)
}

// Invalidate drops every cached result regardless of generation.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(q *parser.Query, limit int) string {
	h := xxhash.New()
	h.WriteString(q.Canonical())
	h.WriteString("|limit=")
	h.WriteString(strconv.Itoa(limit))
	return keyPrefix + c.version() + ":" + strconv.FormatUint(h.Sum64(), 16)
}
