package segment

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

// Writer serialises TermEntry slices into new segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write creates the file for segment id holding one record per entry, in the
// given order, and returns each keyword's record ordinal. The data is written
// to a .tmp file, fsynced and renamed, so a segment file is either complete or
// absent. An existing segment file is never overwritten.
func (w *Writer) Write(id uint64, entries []index.TermEntry) (map[string]int, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("segment %d: cannot write empty segment: %w", id, apperrors.ErrInvalidInput)
	}
	offsets := make(map[string]int, len(entries))
	for i, entry := range entries {
		if !validKeyword(entry.Keyword) {
			return nil, fmt.Errorf("segment %d: keyword %q: %w", id, entry.Keyword, apperrors.ErrInvalidInput)
		}
		if _, dup := offsets[entry.Keyword]; dup {
			return nil, fmt.Errorf("segment %d: duplicate keyword %q: %w", id, entry.Keyword, apperrors.ErrInvalidInput)
		}
		offsets[entry.Keyword] = i
	}

	finalPath := filepath.Join(w.dataDir, FileName(id))
	tmpPath := finalPath + tmpExt
	if _, err := os.Stat(finalPath); err == nil {
		return nil, fmt.Errorf("segment %d already exists: %w", id, apperrors.ErrStorageIO)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking segment %d: %w: %w", id, apperrors.ErrStorageIO, err)
	}

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating temp segment file: %w: %w", apperrors.ErrStorageIO, err)
	}
	if err := writeRecords(f, entries); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing segment %d: %w: %w", id, apperrors.ErrStorageIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing segment %d: %w: %w", id, apperrors.ErrStorageIO, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("renaming segment file: %w: %w", apperrors.ErrStorageIO, err)
	}
	return offsets, nil
}

func writeRecords(f *os.File, entries []index.TermEntry) error {
	bw := bufio.NewWriterSize(f, 64*1024)
	buf := make([]byte, 0, 256)
	for _, entry := range entries {
		buf = appendRecord(buf[:0], entry.Keyword, entry.Postings)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}
