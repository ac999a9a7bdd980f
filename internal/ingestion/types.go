// Package ingestion defines the request/response types and Kafka event schema
// used to feed documents into the index engine.
package ingestion

import "time"

// Ingestion outcomes reported in IngestResponse.Status.
const (
	StatusIndexed = "INDEXED"
	StatusQueued  = "QUEUED"
)

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
// Async requests are published to Kafka instead of being indexed inline.
type IngestRequest struct {
	Text  string `json:"text"`
	Async bool   `json:"async,omitempty"`
}

// IngestResponse is returned to the caller after a document is accepted.
// DocumentID is absent for queued documents; the id is assigned when the
// consumer indexes the event.
type IngestResponse struct {
	DocumentID *uint64 `json:"document_id,omitempty"`
	EventID    string  `json:"event_id,omitempty"`
	Status     string  `json:"status"`
	Warning    string  `json:"warning,omitempty"`
}

// IngestEvent is the Kafka message payload consumed by the indexer.
type IngestEvent struct {
	EventID    string    `json:"event_id"`
	Text       string    `json:"text"`
	IngestedAt time.Time `json:"ingested_at"`
}

// DocumentResponse is the body of GET /api/v1/documents/{id}.
type DocumentResponse struct {
	DocumentID uint64 `json:"document_id"`
	Text       string `json:"text"`
}
