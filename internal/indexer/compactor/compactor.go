// Package compactor bounds the number of live segments by merging the
// oldest ones in the background.
//
// Each cycle walks IDLE -> SELECTING -> MERGING -> PUBLISHING -> IDLE. The
// merged segment is fully written before the catalog is touched, and the
// replaced files are only deleted after a grace period, so a failed cycle
// always leaves the previous durable state in place.
package compactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/resilience"
)

type State int32

const (
	StateIdle State = iota
	StateSelecting
	StateMerging
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSelecting:
		return "SELECTING"
	case StateMerging:
		return "MERGING"
	case StatePublishing:
		return "PUBLISHING"
	default:
		return "UNKNOWN"
	}
}

// SegmentStore is the subset of segment.Store the compactor needs.
type SegmentStore interface {
	NextID() uint64
	ReadSegment(id uint64) ([]index.TermEntry, error)
	WriteSegment(id uint64, entries []index.TermEntry) (map[string]int, error)
	DeleteSegment(id uint64) error
}

// Catalog is the subset of catalog.Catalog the compactor needs.
type Catalog interface {
	Segments() []uint64
	Replace(oldIDs []uint64, newID uint64, newOffsets map[string]int) error
}

type Config struct {
	// Threshold is the live segment count above which a merge runs.
	Threshold int
	// Interval between periodic cycles; zero disables the ticker.
	Interval time.Duration
	// EveryFlushes triggers a cycle after that many flushes; zero disables it.
	EveryFlushes int
	// MergeWidth is how many segments one cycle merges.
	MergeWidth  int
	GracePeriod time.Duration
}

type pendingDeletion struct {
	ids []uint64
	due time.Time
}

type Compactor struct {
	cfg     Config
	store   SegmentStore
	catalog Catalog
	logger  *slog.Logger
	metrics *metrics.Metrics

	state   atomic.Int32
	flushes atomic.Int64
	trigger chan struct{}
	runMu   sync.Mutex

	mu      sync.Mutex
	pending []pendingDeletion
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}

	now func() time.Time
}

type Option func(*Compactor)

func WithLogger(l *slog.Logger) Option {
	return func(c *Compactor) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Compactor) { c.metrics = m }
}

func New(cfg Config, store SegmentStore, catalog Catalog, opts ...Option) *Compactor {
	if cfg.MergeWidth < 2 {
		cfg.MergeWidth = 2
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	c := &Compactor{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		logger:  slog.Default(),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "compactor")
	return c
}

func (c *Compactor) State() State {
	return State(c.state.Load())
}

// LastError returns the error of the most recent failed cycle, or nil once a
// cycle succeeds.
func (c *Compactor) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Trigger requests a cycle without blocking. Requests made while one is
// already queued are coalesced.
func (c *Compactor) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// NotifyFlush counts a flush and triggers a cycle every EveryFlushes flushes.
func (c *Compactor) NotifyFlush() {
	if c.cfg.EveryFlushes <= 0 {
		return
	}
	if c.flushes.Add(1)%int64(c.cfg.EveryFlushes) == 0 {
		c.Trigger()
	}
}

// Start runs the compaction loop until ctx is cancelled or Stop is called.
func (c *Compactor) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.loop(ctx, done)
	c.logger.Info("compactor started",
		"threshold", c.cfg.Threshold,
		"interval", c.cfg.Interval,
		"merge_width", c.cfg.MergeWidth,
	)
}

// Stop cancels the loop and waits for an in-flight cycle to finish. A cycle
// is never abandoned halfway through MERGING.
func (c *Compactor) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("compactor stopped", "pending_deletions", c.PendingDeletions())
}

func (c *Compactor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if c.cfg.Interval > 0 {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-c.trigger:
		}
		compacted, err := c.RunOnce(ctx)
		if err != nil {
			c.logger.Error("compaction cycle failed", "error", err)
			continue
		}
		if compacted && len(c.catalog.Segments()) > c.cfg.Threshold {
			c.Trigger()
		}
	}
}

// RunOnce purges due deletions and runs one cycle. It reports whether a
// merge was published.
func (c *Compactor) RunOnce(ctx context.Context) (bool, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.purge(ctx)

	start := time.Now()
	compacted, err := c.cycle()
	c.state.Store(int32(StateIdle))

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	switch {
	case err != nil:
		c.metrics.ObserveCompaction("error", time.Since(start))
	case compacted:
		c.metrics.ObserveCompaction("ok", time.Since(start))
	}
	if compacted && c.cfg.GracePeriod <= 0 {
		c.purge(ctx)
	}
	return compacted, err
}

func (c *Compactor) cycle() (bool, error) {
	c.state.Store(int32(StateSelecting))
	live := c.catalog.Segments()
	c.metrics.SetLiveSegments(len(live))
	if len(live) <= c.cfg.Threshold {
		return false, nil
	}
	width := c.cfg.MergeWidth
	if width > len(live) {
		width = len(live)
	}
	selected := live[:width]

	c.state.Store(int32(StateMerging))
	merged, err := c.merge(selected)
	if err != nil {
		return false, err
	}
	newID := c.store.NextID()
	offsets, err := c.store.WriteSegment(newID, merged)
	if err != nil {
		return false, fmt.Errorf("writing merged segment %d: %w", newID, err)
	}

	c.state.Store(int32(StatePublishing))
	if err := c.catalog.Replace(selected, newID, offsets); err != nil {
		if derr := c.store.DeleteSegment(newID); derr != nil {
			c.logger.Warn("failed to remove unpublished segment", "segment_id", newID, "error", derr)
		}
		if errors.Is(err, apperrors.ErrCatalogInconsistency) {
			c.logger.Error("catalog refused merged segment", "segment_id", newID, "replaced", selected, "error", err)
		}
		return false, fmt.Errorf("publishing merged segment %d: %w", newID, err)
	}

	c.mu.Lock()
	c.pending = append(c.pending, pendingDeletion{
		ids: append([]uint64(nil), selected...),
		due: c.now().Add(c.cfg.GracePeriod),
	})
	c.mu.Unlock()

	c.metrics.SetLiveSegments(len(live) - width + 1)
	c.logger.Info("segments merged",
		"replaced", selected,
		"segment_id", newID,
		"keywords", len(merged),
	)
	return true, nil
}

// merge unions the records of the given segments, oldest first, so every
// keyword's postings keep their ingestion order.
func (c *Compactor) merge(ids []uint64) ([]index.TermEntry, error) {
	pos := make(map[string]int)
	var merged []index.TermEntry
	for _, id := range ids {
		entries, err := c.store.ReadSegment(id)
		if err != nil {
			return nil, fmt.Errorf("reading segment %d: %w", id, err)
		}
		for _, e := range entries {
			if i, ok := pos[e.Keyword]; ok {
				merged[i].Postings = append(merged[i].Postings, e.Postings...)
				continue
			}
			pos[e.Keyword] = len(merged)
			merged = append(merged, index.TermEntry{
				Keyword:  e.Keyword,
				Postings: append(index.PostingList(nil), e.Postings...),
			})
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Keyword < merged[j].Keyword })
	return merged, nil
}

// PendingDeletions returns how many replaced segments still await deletion.
func (c *Compactor) PendingDeletions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pending {
		n += len(p.ids)
	}
	return n
}

func (c *Compactor) purge(ctx context.Context) {
	now := c.now()
	c.mu.Lock()
	var due []uint64
	kept := c.pending[:0]
	for _, p := range c.pending {
		if !now.Before(p.due) {
			due = append(due, p.ids...)
			continue
		}
		kept = append(kept, p)
	}
	c.pending = kept
	c.mu.Unlock()

	var failed []uint64
	for _, id := range due {
		err := resilience.Retry(ctx, "delete-segment", resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			Retryable: func(err error) bool {
				return !errors.Is(err, apperrors.ErrSegmentNotFound)
			},
		}, func() error {
			return c.store.DeleteSegment(id)
		})
		if err != nil && !errors.Is(err, apperrors.ErrSegmentNotFound) {
			c.logger.Warn("segment deletion failed, will retry", "segment_id", id, "error", err)
			failed = append(failed, id)
			continue
		}
		c.metrics.SegmentDeleted()
		c.logger.Debug("segment deleted", "segment_id", id)
	}
	if len(failed) > 0 {
		c.mu.Lock()
		c.pending = append(c.pending, pendingDeletion{ids: failed, due: now})
		c.mu.Unlock()
	}
}
