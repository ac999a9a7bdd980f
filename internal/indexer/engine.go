package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/compactor"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/metrics"
)

// DocumentStore assigns document ids and keeps the original text.
type DocumentStore interface {
	Insert(ctx context.Context, text string) (uint64, error)
	Find(ctx context.Context, id uint64) (string, error)
}

// SegmentStore persists memtable snapshots as immutable segments.
type SegmentStore interface {
	compactor.SegmentStore
	ReadRecord(id uint64, offset int) (segment.Record, error)
	Exists(id uint64) bool
	List() ([]uint64, error)
	Close() error
}

// maxStaleRetries bounds how often a lookup re-reads the catalog after
// losing a race with compaction.
const maxStaleRetries = 3

type Engine struct {
	cfg       config.IndexerConfig
	docs      DocumentStore
	store     SegmentStore
	catalog   *catalog.Catalog
	compactor *compactor.Compactor
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// mu covers the memtable together with catalog appends. Flush holds it
	// exclusively so readers see either the pre- or post-flush state.
	mu         sync.RWMutex
	memtable   *index.Memtable
	flushErr   error
	closed     bool
	generation atomic.Uint64
	epoch      string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New wires an engine around already opened collaborators.
func New(cfg config.IndexerConfig, docs DocumentStore, store SegmentStore, cat *catalog.Catalog, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if docs == nil || store == nil || cat == nil {
		return nil, fmt.Errorf("engine requires a document store, segment store and catalog: %w", apperrors.ErrInvalidInput)
	}
	e := &Engine{
		cfg:      cfg,
		docs:     docs,
		store:    store,
		catalog:  cat,
		memtable: index.NewMemtable(),
		logger:   slog.Default(),
		epoch:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "indexer")
	e.compactor = compactor.New(compactor.Config{
		Threshold:    cfg.CompactionThreshold,
		Interval:     cfg.CompactionInterval,
		EveryFlushes: cfg.CompactEveryFlushes,
		MergeWidth:   cfg.MergeWidth,
		GracePeriod:  cfg.DeleteGracePeriod,
	}, store, cat, compactor.WithLogger(e.logger), compactor.WithMetrics(e.metrics))
	e.metrics.SetLiveSegments(len(cat.Segments()))
	return e, nil
}

// Open opens the segment directory and catalog under cfg.DataDir, checks
// they agree and returns a ready engine.
func Open(cfg config.IndexerConfig, docs DocumentStore, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	probe := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(probe)
	}
	logger := probe.logger.With("component", "indexer")

	store, err := segment.OpenStore(cfg.DataDir, probe.logger)
	if err != nil {
		return nil, fmt.Errorf("opening segment store: %w", err)
	}
	var cat *catalog.Catalog
	if cfg.CatalogFile != "" {
		cat, err = catalog.Open(filepath.Join(cfg.DataDir, cfg.CatalogFile))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("opening catalog: %w", err)
		}
	} else {
		cat = catalog.New()
	}
	if err := recoverSegments(store, cat, cfg.CatalogFile != "", logger); err != nil {
		cat.Close()
		store.Close()
		return nil, err
	}
	if err := checkDocumentStore(docs, cat); err != nil {
		cat.Close()
		store.Close()
		return nil, err
	}
	e, err := New(cfg, docs, store, cat, opts...)
	if err != nil {
		cat.Close()
		store.Close()
		return nil, err
	}
	e.logger.Info("index opened",
		"data_dir", cfg.DataDir,
		"segments", len(cat.Segments()),
		"keywords", cat.Len(),
	)
	return e, nil
}

// recoverSegments makes the segment directory match the catalog: every
// catalogued segment must exist, and files the catalog does not reference
// are leftovers of an interrupted flush or compaction.
func recoverSegments(store SegmentStore, cat *catalog.Catalog, durable bool, logger *slog.Logger) error {
	for _, id := range cat.Segments() {
		if !store.Exists(id) {
			return fmt.Errorf("catalogued segment %d is missing: %w", id, apperrors.ErrCatalogInconsistency)
		}
	}
	onDisk, err := store.List()
	if err != nil {
		return err
	}
	var orphans []uint64
	for _, id := range onDisk {
		if !cat.Contains(id) {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	if !durable {
		return fmt.Errorf("data dir holds %d segments but the catalog is not persisted: %w",
			len(orphans), apperrors.ErrCatalogInconsistency)
	}
	for _, id := range orphans {
		if err := store.DeleteSegment(id); err != nil {
			return fmt.Errorf("removing orphan segment %d: %w", id, err)
		}
		logger.Info("removed orphan segment", "segment_id", id)
	}
	return nil
}

// Start launches the compactor and, when configured, the periodic flush
// loop. Both stop when ctx is cancelled or Close is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.compactor.Start(ctx)
	if e.cfg.FlushInterval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil && !errors.Is(err, apperrors.ErrClosed) {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// AddDocument stores text, indexes its keywords and returns the new document
// id. When the memtable reaches capacity the flush runs inside this call. If
// that flush fails the document is still indexed in memory and its id is
// returned with an error wrapping ErrFlushFailed; later calls first retry the
// flush and refuse with ErrIngestionHalted while storage stays unhealthy.
func (e *Engine) AddDocument(ctx context.Context, text string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, apperrors.ErrClosed
	}
	if e.flushErr != nil {
		if err := e.flushLocked(); err != nil {
			return 0, fmt.Errorf("%w: %w", apperrors.ErrIngestionHalted, err)
		}
		e.logger.Info("storage recovered, ingestion resumed")
	}

	id, err := e.docs.Insert(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("storing document: %w", err)
	}
	added := e.memtable.Add(id, tokenizer.Tokenize(text))
	e.generation.Add(1)
	e.metrics.ObserveIngest(added, e.memtable.Size())

	if e.memtable.Size() >= e.cfg.MemtableCapacity {
		e.logger.Debug("memtable reached capacity",
			"keywords", e.memtable.Size(),
			"capacity", e.cfg.MemtableCapacity,
		)
		if err := e.flushLocked(); err != nil {
			return id, fmt.Errorf("%w: document %d: %w", apperrors.ErrFlushFailed, id, err)
		}
	}
	return id, nil
}

// Flush persists the memtable as a new segment. An empty memtable is a
// no-op.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	if e.memtable.Size() == 0 {
		e.flushErr = nil
		return nil
	}
	start := time.Now()
	snapshot := e.memtable.Snapshot()
	id := e.store.NextID()

	offsets, err := e.store.WriteSegment(id, snapshot)
	if err == nil {
		err = e.catalog.RecordFlush(id, offsets, e.memtable.LastDocument())
		if err != nil {
			if derr := e.store.DeleteSegment(id); derr != nil {
				e.logger.Warn("failed to remove unrecorded segment", "segment_id", id, "error", derr)
			}
		}
	}
	if err != nil {
		e.flushErr = err
		e.metrics.ObserveFlush("error", time.Since(start))
		e.logger.Error("flush failed, memtable kept",
			"segment_id", id,
			"keywords", len(snapshot),
			"error", err,
		)
		return fmt.Errorf("flushing memtable: %w", err)
	}

	e.memtable.Reset()
	e.flushErr = nil
	e.metrics.ObserveFlush("ok", time.Since(start))
	live := len(e.catalog.Segments())
	e.metrics.SetLiveSegments(live)
	e.logger.Info("memtable flushed",
		"segment_id", id,
		"keywords", len(snapshot),
		"live_segments", live,
		"duration", time.Since(start),
	)
	e.compactor.NotifyFlush()
	return nil
}

// checkDocumentStore makes sure docs still holds the newest document the
// catalog has indexed. A store that lost it would hand out ids that segments
// already reference.
func checkDocumentStore(docs DocumentStore, cat *catalog.Catalog) error {
	last, ok := cat.LastDocument()
	if !ok || docs == nil {
		return nil
	}
	_, err := docs.Find(context.Background(), last)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return fmt.Errorf("document store does not hold indexed document %d, new ids would be reused: %w",
			last, apperrors.ErrCatalogInconsistency)
	default:
		return fmt.Errorf("checking document store against catalog: %w", err)
	}
}

// view is a keyword's postings as seen under one read lock: the memtable
// copy plus the catalog locations still to be read.
type view struct {
	memtable  index.PostingList
	locations []index.Location
}

func (e *Engine) snapshot(keywords []string) ([]view, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, apperrors.ErrClosed
	}
	views := make([]view, len(keywords))
	for i, kw := range keywords {
		views[i] = view{
			memtable:  e.memtable.Postings(kw),
			locations: e.catalog.Locations(kw),
		}
	}
	return views, nil
}

// Search returns every document id indexed under keyword: segment postings
// oldest first, then the memtable. An unknown keyword yields an empty list.
func (e *Engine) Search(ctx context.Context, keyword string) (index.PostingList, error) {
	start := time.Now()
	views, err := e.snapshot([]string{keyword})
	if err != nil {
		return nil, err
	}
	postings, err := e.resolve(ctx, keyword, views[0])
	e.metrics.ObserveSearch("single", len(postings), err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return postings, nil
}

// SearchAll returns, in ascending order, the ids of documents containing
// every keyword. Duplicate keywords count once and an empty set matches
// nothing.
func (e *Engine) SearchAll(ctx context.Context, keywords []string) ([]uint64, error) {
	start := time.Now()
	result, err := e.searchAll(ctx, keywords)
	e.metrics.ObserveSearch("conjunctive", len(result), err, time.Since(start))
	return result, err
}

func (e *Engine) searchAll(ctx context.Context, keywords []string) ([]uint64, error) {
	wanted := make([]string, 0, len(keywords))
	for _, kw := range tokenizer.Unique(keywords) {
		if kw != "" {
			wanted = append(wanted, kw)
		}
	}
	if len(wanted) == 0 {
		return []uint64{}, nil
	}

	views, err := e.snapshot(wanted)
	if err != nil {
		return nil, err
	}

	sets := make([]*roaring64.Bitmap, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SearchParallelism)
	for i, kw := range wanted {
		g.Go(func() error {
			postings, err := e.resolve(gctx, kw, views[i])
			if err != nil {
				return err
			}
			set := roaring64.New()
			set.AddMany(postings)
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := make(map[uint64]int)
	for _, set := range sets {
		if set.IsEmpty() {
			return []uint64{}, nil
		}
		it := set.Iterator()
		for it.HasNext() {
			counts[it.Next()]++
		}
	}
	result := make([]uint64, 0)
	for id, n := range counts {
		if n == len(sets) {
			result = append(result, id)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// resolve reads v's locations from disk and appends the memtable postings.
// A location whose segment was compacted away after the snapshot is retried
// from a fresh snapshot; anything else the catalog cannot back up is an
// inconsistency.
func (e *Engine) resolve(ctx context.Context, keyword string, v view) (index.PostingList, error) {
	for attempt := 0; ; attempt++ {
		postings, stale, err := e.readLocations(ctx, keyword, v)
		if err == nil {
			return append(postings, v.memtable...), nil
		}
		if !stale || attempt >= maxStaleRetries {
			return nil, err
		}
		views, serr := e.snapshot([]string{keyword})
		if serr != nil {
			return nil, serr
		}
		v = views[0]
	}
}

func (e *Engine) readLocations(ctx context.Context, keyword string, v view) (index.PostingList, bool, error) {
	out := make(index.PostingList, 0, len(v.memtable))
	for _, loc := range v.locations {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		rec, err := e.store.ReadRecord(loc.SegmentID, loc.Offset)
		if err == nil && rec.Keyword != keyword {
			err = fmt.Errorf("segment %d record %d holds %q", loc.SegmentID, loc.Offset, rec.Keyword)
		}
		if err == nil {
			out = append(out, rec.Postings...)
			continue
		}
		if errors.Is(err, apperrors.ErrClosed) {
			return nil, false, err
		}
		if errors.Is(err, apperrors.ErrSegmentNotFound) && !e.catalog.Contains(loc.SegmentID) {
			return nil, true, err
		}
		if errors.Is(err, apperrors.ErrStorageIO) && !errors.Is(err, apperrors.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("reading %q from segment %d: %w", keyword, loc.SegmentID, err)
		}
		e.logger.Error("catalog location cannot be read",
			"keyword", keyword,
			"segment_id", loc.SegmentID,
			"offset", loc.Offset,
			"error", err,
		)
		return nil, false, fmt.Errorf("keyword %q at segment %d offset %d: %w: %w",
			keyword, loc.SegmentID, loc.Offset, apperrors.ErrCatalogInconsistency, err)
	}
	return out, false, nil
}

// Document returns the text of document id.
func (e *Engine) Document(ctx context.Context, id uint64) (string, error) {
	return e.docs.Find(ctx, id)
}

// Generation counts documents added since this engine was opened.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// Version identifies the current index contents: a per-open epoch plus the
// generation. It changes on every add and never repeats across restarts, so
// results cached under it cannot be served stale.
func (e *Engine) Version() string {
	return fmt.Sprintf("%s.%d", e.epoch, e.generation.Load())
}

// Healthy returns nil while the engine accepts documents.
func (e *Engine) Healthy() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	if e.flushErr != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrIngestionHalted, e.flushErr)
	}
	return nil
}

type Stats struct {
	MemtableKeywords  int    `json:"memtable_keywords"`
	MemtablePostings  int    `json:"memtable_postings"`
	MemtableDocuments int    `json:"memtable_documents"`
	CatalogKeywords   int    `json:"catalog_keywords"`
	LiveSegments      int    `json:"live_segments"`
	PendingDeletions  int    `json:"pending_deletions"`
	Generation        uint64 `json:"generation"`
	CompactorState    string `json:"compactor_state"`
	Halted            bool   `json:"halted"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		MemtableKeywords:  e.memtable.Size(),
		MemtablePostings:  e.memtable.PostingCount(),
		MemtableDocuments: e.memtable.DocCount(),
		CatalogKeywords:   e.catalog.Len(),
		LiveSegments:      len(e.catalog.Segments()),
		PendingDeletions:  e.compactor.PendingDeletions(),
		Generation:        e.generation.Load(),
		CompactorState:    e.compactor.State().String(),
		Halted:            e.flushErr != nil,
	}
}

// Compactor exposes the background compactor, mainly so callers can force a
// cycle with RunOnce.
func (e *Engine) Compactor() *compactor.Compactor {
	return e.compactor
}

// Close stops background work, flushes the memtable and releases the
// catalog and segment files. Replaced segments still in their grace period
// are left on disk and removed at the next Open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.compactor.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if err := e.flushLocked(); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}
	e.closed = true
	if err := e.catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing catalog: %w", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing segment store: %w", err))
	}
	e.logger.Info("index closed")
	return errors.Join(errs...)
}
