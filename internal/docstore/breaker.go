package docstore

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/resilience"
)

// Guarded routes every call to a remote store through a circuit breaker so
// a dead backend fails fast with ErrUnavailable instead of stalling
// ingestion. Lookups of unknown ids do not count as failures.
type Guarded struct {
	inner Store
	cb    *resilience.CircuitBreaker
}

// NewGuarded wraps inner with a breaker built from cfg. cfg.IsFailure is
// replaced so that ErrDocumentNotFound never trips the breaker.
func NewGuarded(name string, inner Store, cfg resilience.CircuitBreakerConfig) *Guarded {
	cfg.IsFailure = func(err error) bool {
		return !errors.Is(err, apperrors.ErrDocumentNotFound)
	}
	return &Guarded{inner: inner, cb: resilience.NewCircuitBreaker(name, cfg)}
}

func (g *Guarded) Insert(ctx context.Context, text string) (uint64, error) {
	var id uint64
	err := g.cb.Execute(func() error {
		var err error
		id, err = g.inner.Insert(ctx, text)
		return err
	})
	return id, g.mapErr(err)
}

func (g *Guarded) Find(ctx context.Context, id uint64) (string, error) {
	var text string
	err := g.cb.Execute(func() error {
		var err error
		text, err = g.inner.Find(ctx, id)
		return err
	})
	return text, g.mapErr(err)
}

// State reports the breaker state.
func (g *Guarded) State() resilience.State {
	return g.cb.GetState()
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}

func (g *Guarded) mapErr(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("document store %s: %w: %w", g.cb.Name(), apperrors.ErrUnavailable, err)
	}
	return err
}
