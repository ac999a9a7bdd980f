// Package consumer indexes ingest events read from Kafka.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/kafka"
)

// Indexer is satisfied by *indexer.Engine.
type Indexer interface {
	AddDocument(ctx context.Context, text string) (uint64, error)
}

// HandleMessage returns a Kafka MessageHandler that indexes every ingest
// event. Undecodable or empty events are dropped. A failed flush still
// counts as indexed, since the document is already in the memtable and a
// redelivery would index it twice. Every other failure, including a closed
// engine during shutdown, leaves the event for redelivery.
func HandleMessage(engine Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return kafka.Permanent(err)
		}
		if event.Text == "" {
			logger.Warn("dropping empty ingest event", "event_id", event.EventID)
			return kafka.Permanent(fmt.Errorf("event %s: %w", event.EventID, apperrors.ErrInvalidInput))
		}

		id, err := engine.AddDocument(ctx, event.Text)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrFlushFailed):
			logger.Warn("document indexed but flush failed",
				"event_id", event.EventID,
				"doc_id", id,
				"error", err,
			)
			return nil
		default:
			return fmt.Errorf("indexing event %s: %w", event.EventID, err)
		}

		logger.Debug("document indexed",
			"event_id", event.EventID,
			"doc_id", id,
			"queued_for", time.Since(event.IngestedAt),
		)
		return nil
	}
}
