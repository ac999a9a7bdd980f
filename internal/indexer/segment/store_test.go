package segment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := OpenStore(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntries() []index.TermEntry {
	return []index.TermEntry{
		{Keyword: "Alice", Postings: index.PostingList{0}},
		{Keyword: "Hello", Postings: index.PostingList{0, 1, 2}},
		{Keyword: "Bob", Postings: index.PostingList{1, 1}},
	}
}

func TestWriteAndReadRecords(t *testing.T) {
	s := openStore(t, t.TempDir())
	id := s.NextID()

	offsets, err := s.WriteSegment(id, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Alice": 0, "Hello": 1, "Bob": 2}, offsets)

	rec, err := s.ReadRecord(id, offsets["Hello"])
	require.NoError(t, err)
	assert.Equal(t, "Hello", rec.Keyword)
	assert.Equal(t, index.PostingList{0, 1, 2}, rec.Postings)

	rec, err = s.ReadRecord(id, offsets["Bob"])
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{1, 1}, rec.Postings)

	all, err := s.ReadSegment(id)
	require.NoError(t, err)
	assert.Equal(t, sampleEntries(), all)
}

func TestFileFormat(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	_, err := s.WriteSegment(1, []index.TermEntry{
		{Keyword: "is", Postings: index.PostingList{0, 1}},
		{Keyword: "x", Postings: index.PostingList{}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "seg_00000000000000000001.seg"))
	require.NoError(t, err)
	assert.Equal(t, "is\t0,1\nx\t\n", string(data))

	rec, err := s.ReadRecord(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "x", rec.Keyword)
	assert.Empty(t, rec.Postings)
}

func TestReadRecordErrors(t *testing.T) {
	s := openStore(t, t.TempDir())
	_, err := s.WriteSegment(1, sampleEntries())
	require.NoError(t, err)

	_, err = s.ReadRecord(1, 3)
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
	_, err = s.ReadRecord(1, -1)
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
	_, err = s.ReadRecord(42, 0)
	assert.ErrorIs(t, err, apperrors.ErrSegmentNotFound)
}

func TestWriteRejectsBadInput(t *testing.T) {
	s := openStore(t, t.TempDir())

	_, err := s.WriteSegment(1, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.WriteSegment(2, []index.TermEntry{{Keyword: "a\tb", Postings: index.PostingList{1}}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.WriteSegment(3, []index.TermEntry{
		{Keyword: "a", Postings: index.PostingList{1}},
		{Keyword: "a", Postings: index.PostingList{2}},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSegmentsAreNeverOverwritten(t *testing.T) {
	s := openStore(t, t.TempDir())
	_, err := s.WriteSegment(5, sampleEntries())
	require.NoError(t, err)

	_, err = s.WriteSegment(5, []index.TermEntry{{Keyword: "other", Postings: index.PostingList{9}}})
	assert.ErrorIs(t, err, apperrors.ErrStorageIO)

	rec, err := s.ReadRecord(5, 0)
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.Keyword)
}

func TestNextIDResumesAfterReopen(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	assert.Equal(t, uint64(1), s.NextID())
	_, err := s.WriteSegment(7, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), s.NextID())
	require.NoError(t, s.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(9)+tmpExt), []byte("partial"), 0o644))

	s2 := openStore(t, dir)
	assert.Equal(t, uint64(8), s2.NextID())
	_, err = os.Stat(filepath.Join(dir, FileName(9)+tmpExt))
	assert.True(t, os.IsNotExist(err), "temp file should be swept on open")
}

func TestDeleteSegment(t *testing.T) {
	s := openStore(t, t.TempDir())
	_, err := s.WriteSegment(1, sampleEntries())
	require.NoError(t, err)
	_, err = s.WriteSegment(2, sampleEntries())
	require.NoError(t, err)

	// warm the reader cache before deleting
	_, err = s.ReadRecord(1, 0)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSegment(1))
	assert.False(t, s.Exists(1))
	_, err = s.ReadRecord(1, 0)
	assert.ErrorIs(t, err, apperrors.ErrSegmentNotFound)
	assert.ErrorIs(t, s.DeleteSegment(1), apperrors.ErrSegmentNotFound)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids)
}

func TestLongRecord(t *testing.T) {
	s := openStore(t, t.TempDir())
	postings := make(index.PostingList, 50000)
	for i := range postings {
		postings[i] = uint64(i)
	}
	_, err := s.WriteSegment(1, []index.TermEntry{
		{Keyword: "big", Postings: postings},
		{Keyword: "small", Postings: index.PostingList{3}},
	})
	require.NoError(t, err)

	rec, err := s.ReadRecord(1, 0)
	require.NoError(t, err)
	assert.Len(t, rec.Postings, 50000)
	rec, err = s.ReadRecord(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "small", rec.Keyword)
}

func TestTruncatedSegmentRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(1)), []byte("a\t1\nb\t2"), 0o644))
	s := openStore(t, dir)
	_, err := s.ReadRecord(1, 0)
	assert.ErrorIs(t, err, apperrors.ErrStorageIO)
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord([]byte("kw\t1,22,333\n"))
	require.NoError(t, err)
	assert.Equal(t, Record{Keyword: "kw", Postings: index.PostingList{1, 22, 333}}, rec)

	_, err = parseRecord([]byte("no-delimiter\n"))
	assert.Error(t, err)
	_, err = parseRecord([]byte("\t1\n"))
	assert.Error(t, err)
	_, err = parseRecord([]byte("kw\t1,x\n"))
	assert.Error(t, err)
}

func TestFileNameRoundTrip(t *testing.T) {
	name := FileName(123)
	assert.True(t, strings.HasPrefix(name, "seg_"))
	id, ok := parseFileName(name)
	assert.True(t, ok)
	assert.Equal(t, uint64(123), id)

	_, ok = parseFileName("catalog.db")
	assert.False(t, ok)
}
