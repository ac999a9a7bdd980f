package docstore

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

// Memory is an append-only in-process store.
type Memory struct {
	mu   sync.RWMutex
	docs []string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(_ context.Context, text string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, text)
	return uint64(len(m.docs) - 1), nil
}

func (m *Memory) Find(_ context.Context, id uint64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id >= uint64(len(m.docs)) {
		return "", fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return m.docs[id], nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *Memory) Close() error { return nil }
