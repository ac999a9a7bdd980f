package segment

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

// Reader provides random access to the records of one segment file. On open
// it scans the file once and keeps the byte offset of every record, so a
// lookup by ordinal is a single positioned read.
type Reader struct {
	mu      sync.RWMutex
	id      uint64
	file    *os.File
	offsets []int64 // offsets[i] is where record i starts; the last entry is the file size
	closed  bool
}

// OpenReader opens the segment file at path.
func OpenReader(id uint64, path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("segment %d: %w", id, apperrors.ErrSegmentNotFound)
		}
		return nil, fmt.Errorf("opening segment %d: %w: %w", id, apperrors.ErrStorageIO, err)
	}
	offsets, err := scanOffsets(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("indexing segment %d: %w: %w", id, apperrors.ErrStorageIO, err)
	}
	return &Reader{id: id, file: f, offsets: offsets}, nil
}

func scanOffsets(f *os.File) ([]int64, error) {
	br := bufio.NewReaderSize(io.NewSectionReader(f, 0, 1<<62), 64*1024)
	offsets := make([]int64, 0, 1024)
	var pos int64
	for {
		line, err := br.ReadSlice(recordEnd)
		n := int64(len(line))
		// a record longer than the buffer arrives in pieces
		for errors.Is(err, bufio.ErrBufferFull) {
			line, err = br.ReadSlice(recordEnd)
			n += int64(len(line))
		}
		if n > 0 {
			if err == io.EOF {
				return nil, fmt.Errorf("truncated record at byte %d", pos)
			}
			offsets = append(offsets, pos)
			pos += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return append(offsets, pos), nil
}

func (r *Reader) ID() uint64 { return r.id }

// Len returns the number of records in the segment.
func (r *Reader) Len() int {
	return len(r.offsets) - 1
}

// ReadRecord decodes the record at the given ordinal.
func (r *Reader) ReadRecord(ordinal int) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return Record{}, fmt.Errorf("segment %d: %w", r.id, apperrors.ErrSegmentNotFound)
	}
	if ordinal < 0 || ordinal >= r.Len() {
		return Record{}, fmt.Errorf("segment %d record %d: %w", r.id, ordinal, apperrors.ErrRecordNotFound)
	}
	start, end := r.offsets[ordinal], r.offsets[ordinal+1]
	buf := make([]byte, end-start)
	if _, err := r.file.ReadAt(buf, start); err != nil {
		return Record{}, fmt.Errorf("reading segment %d record %d: %w: %w", r.id, ordinal, apperrors.ErrStorageIO, err)
	}
	rec, err := parseRecord(buf)
	if err != nil {
		return Record{}, fmt.Errorf("segment %d record %d: %w: %w", r.id, ordinal, apperrors.ErrStorageIO, err)
	}
	return rec, nil
}

// ReadAll decodes every record in file order.
func (r *Reader) ReadAll() ([]index.TermEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, fmt.Errorf("segment %d: %w", r.id, apperrors.ErrSegmentNotFound)
	}
	size := r.offsets[len(r.offsets)-1]
	br := bufio.NewReaderSize(io.NewSectionReader(r.file, 0, size), 64*1024)
	entries := make([]index.TermEntry, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		line, err := br.ReadBytes(recordEnd)
		if err != nil {
			return nil, fmt.Errorf("reading segment %d: %w: %w", r.id, apperrors.ErrStorageIO, err)
		}
		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("segment %d record %d: %w: %w", r.id, i, apperrors.ErrStorageIO, err)
		}
		entries = append(entries, index.TermEntry{Keyword: rec.Keyword, Postings: rec.Postings})
	}
	return entries, nil
}

// Close releases the file. Reads after Close fail with ErrSegmentNotFound.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
