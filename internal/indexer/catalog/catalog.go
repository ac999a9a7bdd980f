// Package catalog maps every keyword to the on-disk locations of its
// postings. Live segments are kept in content order: a segment produced by
// compaction takes the place of the oldest segment it replaced, so iterating a
// keyword's locations always walks its postings oldest first.
//
// A Catalog is either purely in memory (New) or backed by a bolt file (Open).
// In the durable case every mutation is committed to bolt before it becomes
// visible to readers.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

type Catalog struct {
	mu        sync.RWMutex
	locations map[string][]index.Location
	segments  []uint64       // live segments, oldest content first
	refs      map[uint64]int // keywords referencing each live segment
	db        *bolt.DB
	closed    bool

	lastDoc uint64 // highest document id covered by a recorded flush
	hasDocs bool
}

// New returns an empty in-memory catalog.
func New() *Catalog {
	return &Catalog{
		locations: make(map[string][]index.Location),
		refs:      make(map[uint64]int),
	}
}

// Record appends one location for keyword. Existing locations are never
// overwritten; a segment seen for the first time becomes the newest live
// segment.
func (c *Catalog) Record(keyword string, segmentID uint64, offset int) error {
	return c.RecordSegment(segmentID, map[string]int{keyword: offset})
}

// RecordSegment appends the locations of a freshly flushed segment in a
// single step.
func (c *Catalog) RecordSegment(segmentID uint64, offsets map[string]int) error {
	return c.recordSegment(segmentID, offsets, nil)
}

// RecordFlush is RecordSegment for a flush covering documents up to
// lastDoc. The high-water mark is committed with the locations, so a
// reopened index knows which ids it has already handed out.
func (c *Catalog) RecordFlush(segmentID uint64, offsets map[string]int, lastDoc uint64) error {
	return c.recordSegment(segmentID, offsets, &lastDoc)
}

// LastDocument returns the highest document id of any recorded flush.
func (c *Catalog) LastDocument() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDoc, c.hasDocs
}

func (c *Catalog) recordSegment(segmentID uint64, offsets map[string]int, lastDoc *uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ErrClosed
	}

	known := c.isLive(segmentID)
	if known && len(c.segments) > 0 && c.segments[len(c.segments)-1] != segmentID {
		return fmt.Errorf("segment %d is not the newest live segment: %w", segmentID, apperrors.ErrInvalidInput)
	}

	changed := make(map[string][]index.Location, len(offsets))
	for kw, off := range offsets {
		if kw == "" {
			return fmt.Errorf("empty keyword: %w", apperrors.ErrInvalidInput)
		}
		locs := c.locations[kw]
		if n := len(locs); n > 0 && locs[n-1].SegmentID == segmentID {
			return fmt.Errorf("keyword %q already recorded for segment %d: %w", kw, segmentID, apperrors.ErrInvalidInput)
		}
		updated := make([]index.Location, len(locs), len(locs)+1)
		copy(updated, locs)
		changed[kw] = append(updated, index.Location{SegmentID: segmentID, Offset: off})
	}

	segments := c.segments
	if !known {
		segments = append(append(make([]uint64, 0, len(c.segments)+1), c.segments...), segmentID)
	}
	if lastDoc != nil && c.hasDocs && *lastDoc < c.lastDoc {
		lastDoc = nil
	}
	if err := c.persist(changed, segments, lastDoc); err != nil {
		return err
	}

	for kw, locs := range changed {
		c.locations[kw] = locs
	}
	c.segments = segments
	c.refs[segmentID] += len(offsets)
	if lastDoc != nil {
		c.lastDoc, c.hasDocs = *lastDoc, true
	}
	return nil
}

// Locations returns a copy of keyword's locations, oldest first. Unknown
// keywords yield an empty, non-nil slice.
func (c *Catalog) Locations(keyword string) []index.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	locs := c.locations[keyword]
	out := make([]index.Location, len(locs))
	copy(out, locs)
	return out
}

// Replace swaps the locations pointing at oldIDs for the single location in
// newID given by newOffsets, for every keyword at once. oldIDs must be
// adjacent in content order; newID takes their place. The swap is refused
// with ErrCatalogInconsistency when newOffsets does not cover exactly the
// keywords that reference oldIDs.
func (c *Catalog) Replace(oldIDs []uint64, newID uint64, newOffsets map[string]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ErrClosed
	}
	if len(oldIDs) == 0 {
		return fmt.Errorf("replace with no old segments: %w", apperrors.ErrInvalidInput)
	}
	if c.isLive(newID) {
		return fmt.Errorf("segment %d is already live: %w", newID, apperrors.ErrInvalidInput)
	}

	old := make(map[uint64]struct{}, len(oldIDs))
	for _, id := range oldIDs {
		old[id] = struct{}{}
	}
	first := -1
	for i, id := range c.segments {
		if _, ok := old[id]; ok {
			first = i
			break
		}
	}
	if first < 0 || first+len(old) > len(c.segments) {
		return fmt.Errorf("segments %v are not all live: %w", oldIDs, apperrors.ErrInvalidInput)
	}
	for _, id := range c.segments[first : first+len(old)] {
		if _, ok := old[id]; !ok {
			return fmt.Errorf("segments %v are not adjacent: %w", oldIDs, apperrors.ErrInvalidInput)
		}
	}

	expected := 0
	for id := range old {
		expected += c.refs[id]
	}
	found := 0
	changed := make(map[string][]index.Location, len(newOffsets))
	for kw, off := range newOffsets {
		locs := c.locations[kw]
		updated := make([]index.Location, 0, len(locs))
		placed := false
		for _, loc := range locs {
			if _, ok := old[loc.SegmentID]; !ok {
				updated = append(updated, loc)
				continue
			}
			found++
			if !placed {
				updated = append(updated, index.Location{SegmentID: newID, Offset: off})
				placed = true
			}
		}
		if !placed {
			return fmt.Errorf("keyword %q does not reference segments %v: %w", kw, oldIDs, apperrors.ErrCatalogInconsistency)
		}
		changed[kw] = updated
	}
	if found != expected {
		return fmt.Errorf("merged segment %d covers %d of %d locations in %v: %w",
			newID, found, expected, oldIDs, apperrors.ErrCatalogInconsistency)
	}

	segments := make([]uint64, 0, len(c.segments)-len(old)+1)
	segments = append(segments, c.segments[:first]...)
	segments = append(segments, newID)
	segments = append(segments, c.segments[first+len(old):]...)

	if err := c.persist(changed, segments, nil); err != nil {
		return err
	}

	for kw, locs := range changed {
		c.locations[kw] = locs
	}
	c.segments = segments
	for id := range old {
		delete(c.refs, id)
	}
	c.refs[newID] = len(newOffsets)
	return nil
}

// Segments returns the live segment ids, oldest content first.
func (c *Catalog) Segments() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uint64, len(c.segments))
	copy(out, c.segments)
	return out
}

// References returns how many keywords point into segmentID.
func (c *Catalog) References(segmentID uint64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refs[segmentID]
}

func (c *Catalog) Contains(segmentID uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isLive(segmentID)
}

// Len returns the number of distinct keywords on disk.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.locations)
}

// Keywords returns every catalogued keyword, sorted.
func (c *Catalog) Keywords() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.locations))
	for kw := range c.locations {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) isLive(segmentID uint64) bool {
	_, ok := c.refs[segmentID]
	return ok
}

// Close releases the bolt file, if any.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
