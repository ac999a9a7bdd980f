package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

// Store owns the segment directory: it allocates segment ids, writes new
// segments and caches one open Reader per live segment.
type Store struct {
	dir     string
	writer  *Writer
	logger  *slog.Logger
	nextID  atomic.Uint64
	mu      sync.RWMutex
	readers map[uint64]*Reader
	closed  bool
}

// OpenStore opens (creating if needed) the segment directory. Leftover .tmp
// files from an interrupted write are removed, and id allocation resumes
// after the highest segment id found on disk.
func OpenStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w: %w", apperrors.ErrStorageIO, err)
	}
	s := &Store{
		dir:     dir,
		writer:  NewWriter(dir),
		logger:  logger.With("component", "segment-store"),
		readers: make(map[uint64]*Reader),
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing data dir: %w: %w", apperrors.ErrStorageIO, err)
	}
	for _, e := range dirEntries {
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, tmpExt) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				s.logger.Warn("failed to remove temp segment file", "file", name, "error", err)
			} else {
				s.logger.Info("removed temp segment file", "file", name)
			}
			continue
		}
		if id, ok := parseFileName(name); ok && id > s.nextID.Load() {
			s.nextID.Store(id)
		}
	}
	return s, nil
}

// NextID allocates a fresh segment id, strictly greater than every id
// allocated or found on disk before.
func (s *Store) NextID() uint64 {
	return s.nextID.Add(1)
}

// WriteSegment writes entries as segment id and returns each keyword's record
// ordinal.
func (s *Store) WriteSegment(id uint64, entries []index.TermEntry) (map[string]int, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, apperrors.ErrClosed
	}
	for {
		cur := s.nextID.Load()
		if id <= cur || s.nextID.CompareAndSwap(cur, id) {
			break
		}
	}
	offsets, err := s.writer.Write(id, entries)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("segment written", "segment_id", id, "records", len(entries))
	return offsets, nil
}

func (s *Store) reader(id uint64) (*Reader, error) {
	s.mu.RLock()
	r, ok := s.readers[id]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, apperrors.ErrClosed
	}
	if ok {
		return r, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.readers[id]; ok {
		return r, nil
	}
	r, err := OpenReader(id, filepath.Join(s.dir, FileName(id)))
	if err != nil {
		return nil, err
	}
	s.readers[id] = r
	return r, nil
}

// ReadRecord returns the record at ordinal offset of segment id.
func (s *Store) ReadRecord(id uint64, offset int) (Record, error) {
	r, err := s.reader(id)
	if err != nil {
		return Record{}, err
	}
	return r.ReadRecord(offset)
}

// ReadSegment returns every record of segment id in file order.
func (s *Store) ReadSegment(id uint64) ([]index.TermEntry, error) {
	r, err := s.reader(id)
	if err != nil {
		return nil, err
	}
	return r.ReadAll()
}

// DeleteSegment closes the cached reader, if any, and removes the file.
func (s *Store) DeleteSegment(id uint64) error {
	s.mu.Lock()
	if r, ok := s.readers[id]; ok {
		r.Close()
		delete(s.readers, id)
	}
	s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.dir, FileName(id))); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("segment %d: %w", id, apperrors.ErrSegmentNotFound)
		}
		return fmt.Errorf("deleting segment %d: %w: %w", id, apperrors.ErrStorageIO, err)
	}
	return nil
}

// Exists reports whether the file for segment id is present.
func (s *Store) Exists(id uint64) bool {
	_, err := os.Stat(filepath.Join(s.dir, FileName(id)))
	return err == nil
}

// List returns the ids of every segment file on disk, ascending.
func (s *Store) List() ([]uint64, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing data dir: %w: %w", apperrors.ErrStorageIO, err)
	}
	var ids []uint64
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close closes every cached reader.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for id, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing segment %d: %w", id, err))
		}
		delete(s.readers, id)
	}
	return errors.Join(errs...)
}
