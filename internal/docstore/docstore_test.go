package docstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/resilience"
)

// fakeKV mimics the Redis commands the store issues.
type fakeKV struct {
	mu      sync.Mutex
	data    map[string]string
	failSet bool
	down    bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return 0, errors.New("connection refused")
	}
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return "", errors.New("connection refused")
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down || f.failSet {
		return errors.New("write failed")
	}
	f.data[key] = value.(string)
	return nil
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	texts := []string{"Hello my name is Alice", "Hello my name is Bob", ""}
	for i, text := range texts {
		id, err := s.Insert(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), id)
	}
	for i, text := range texts {
		got, err := s.Find(ctx, uint64(i))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
	_, err := s.Find(ctx, uint64(len(texts)))
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	assert.Equal(t, 3, m.Len())
}

func TestMemoryConcurrentInsertsGetDistinctIDs(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	ids := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.Insert(context.Background(), "doc")
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}

func TestRedisStore(t *testing.T) {
	kv := newFakeKV()
	s := NewRedis(kv, "test:")
	exerciseStore(t, s)
	assert.Equal(t, "Hello my name is Bob", kv.data["test:doc:1"])
	assert.Equal(t, "3", kv.data["test:doc:seq"])
}

func TestRedisStoreFailures(t *testing.T) {
	kv := newFakeKV()
	s := NewRedis(kv, "")

	kv.failSet = true
	_, err := s.Insert(context.Background(), "lost")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)

	kv.failSet = false
	id, err := s.Insert(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "failed insert burns its id")
	_, err = s.Find(context.Background(), 0)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	kv.down = true
	_, err = s.Find(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestGuardedOpensOnFailures(t *testing.T) {
	kv := newFakeKV()
	var transitions []resilience.State
	g := NewGuarded("docs", NewRedis(kv, ""), resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange: func(_ string, to resilience.State) {
			transitions = append(transitions, to)
		},
	})
	ctx := context.Background()

	// unknown ids are not failures
	for i := 0; i < 5; i++ {
		_, err := g.Find(ctx, 42)
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	}
	assert.Equal(t, resilience.StateClosed, g.State())

	kv.down = true
	_, err := g.Insert(ctx, "a")
	assert.Error(t, err)
	_, err = g.Insert(ctx, "b")
	assert.Error(t, err)
	assert.Equal(t, resilience.StateOpen, g.State())

	kv.down = false
	_, err = g.Insert(ctx, "c")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, []resilience.State{resilience.StateOpen}, transitions)
}

func TestGuardedPassesThrough(t *testing.T) {
	g := NewGuarded("mem", NewMemory(), resilience.CircuitBreakerConfig{})
	exerciseStore(t, g)
	require.NoError(t, g.Close())
}
