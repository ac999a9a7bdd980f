// Package publisher queues documents for asynchronous indexing by publishing
// ingest events to Kafka.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/kafka"
)

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher turns ingest requests into Kafka events.
type Publisher struct {
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func New(producer EventPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
		now:      time.Now,
	}
}

// Enqueue publishes req as an IngestEvent keyed by a fresh event id. The
// document id is only known once the consumer has indexed the event.
func (p *Publisher) Enqueue(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	eventID := uuid.NewString()
	event := kafka.Event{
		Key: eventID,
		Value: ingestion.IngestEvent{
			EventID:    eventID,
			Text:       req.Text,
			IngestedAt: p.now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("queueing document: %w", err)
	}
	p.logger.Debug("document queued", "event_id", eventID, "size", len(req.Text))
	return &ingestion.IngestResponse{
		EventID: eventID,
		Status:  ingestion.StatusQueued,
	}, nil
}
