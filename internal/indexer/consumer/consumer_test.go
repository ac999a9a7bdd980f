package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/kafka"
)

type stubIndexer struct {
	texts []string
	err   error
}

func (s *stubIndexer) AddDocument(_ context.Context, text string) (uint64, error) {
	if s.err != nil && !errors.Is(s.err, apperrors.ErrFlushFailed) {
		return 0, s.err
	}
	s.texts = append(s.texts, text)
	return uint64(len(s.texts) - 1), s.err
}

func event(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(ingestion.IngestEvent{EventID: "e", Text: text, IngestedAt: time.Now()})
	require.NoError(t, err)
	return b
}

func TestHandleMessageIndexes(t *testing.T) {
	idx := &stubIndexer{}
	h := HandleMessage(idx)
	require.NoError(t, h(context.Background(), []byte("k"), event(t, "Hello my name is Alice")))
	assert.Equal(t, []string{"Hello my name is Alice"}, idx.texts)
}

func TestHandleMessageDropsBadPayloads(t *testing.T) {
	idx := &stubIndexer{}
	h := HandleMessage(idx)

	err := h(context.Background(), nil, []byte("{oops"))
	require.Error(t, err)
	assert.False(t, isRetryable(err))

	err = h(context.Background(), nil, event(t, ""))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, idx.texts)
}

func TestHandleMessageErrors(t *testing.T) {
	halted := &stubIndexer{err: fmt.Errorf("%w: disk full", apperrors.ErrIngestionHalted)}
	err := HandleMessage(halted)(context.Background(), nil, event(t, "a"))
	assert.ErrorIs(t, err, apperrors.ErrIngestionHalted)
	assert.True(t, isRetryable(err))

	flushFailed := &stubIndexer{err: fmt.Errorf("%w: disk full", apperrors.ErrFlushFailed)}
	assert.NoError(t, HandleMessage(flushFailed)(context.Background(), nil, event(t, "a")))
	assert.Len(t, flushFailed.texts, 1)

	closed := &stubIndexer{err: apperrors.ErrClosed}
	err = HandleMessage(closed)(context.Background(), nil, event(t, "a"))
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	assert.True(t, isRetryable(err), "shutdown must not drop the event")
}

func TestHandleMessageWithEngine(t *testing.T) {
	cfg := config.DefaultIndexerConfig(t.TempDir())
	cfg.MemtableCapacity = 3
	engine, err := indexer.Open(cfg, docstore.NewMemory())
	require.NoError(t, err)
	defer engine.Close()

	h := HandleMessage(engine)
	for _, text := range []string{"Hello my name is Alice", "Hello my name is Bob"} {
		require.NoError(t, h(context.Background(), nil, event(t, text)))
	}
	got, err := engine.Search(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, []uint64(got))
}

func isRetryable(err error) bool {
	return !kafka.IsPermanent(err)
}
