package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[payload]([]byte(`{"id":"e1","text":"Hello"}`))
	require.NoError(t, err)
	assert.Equal(t, payload{ID: "e1", Text: "Hello"}, got)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}

func newTestConsumer(h MessageHandler) *Consumer {
	c := &Consumer{handler: h, retry: defaultHandlerRetry()}
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = time.Millisecond
	c.logger = newDiscardLogger()
	return c
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	calls := 0
	c := newTestConsumer(func(context.Context, []byte, []byte) error {
		calls++
		if calls < 3 {
			return errors.New("engine busy")
		}
		return nil
	})
	require.NoError(t, c.process(context.Background(), nil, nil))
	assert.Equal(t, 3, calls)
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	calls := 0
	bad := errors.New("bad payload")
	c := newTestConsumer(func(context.Context, []byte, []byte) error {
		calls++
		return Permanent(bad)
	})
	err := c.process(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, bad)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
