// Package docstore keeps the original text of every ingested document and
// hands out document ids. Ids start at zero, increase strictly and are never
// reused; id i always resolves to the i-th inserted document.
package docstore

import "context"

// Store is the document store consumed by the index engine.
type Store interface {
	Insert(ctx context.Context, text string) (uint64, error)
	// Find returns ErrDocumentNotFound for ids that were never assigned.
	Find(ctx context.Context, id uint64) (string, error)
	Close() error
}
