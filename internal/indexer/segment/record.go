package segment

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/index"
)

// A segment file is a sequence of newline-terminated records, one per
// keyword:
//
//	keyword TAB id[,id...] LF
//
// A record is addressed by its 0-based ordinal within the file.
const (
	RecordDelimiter byte = '\t'
	idSeparator     byte = ','
	recordEnd       byte = '\n'

	filePrefix = "seg_"
	FileExt    = ".seg"
	tmpExt     = ".tmp"
)

// Record is one decoded keyword record.
type Record struct {
	Keyword  string
	Postings index.PostingList
}

// FileName returns the file name holding segment id. Zero padding keeps
// lexical and numeric order identical.
func FileName(id uint64) string {
	return fmt.Sprintf("%s%020d%s", filePrefix, id, FileExt)
}

func parseFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, FileExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), FileExt)
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func validKeyword(kw string) bool {
	return kw != "" && strings.IndexFunc(kw, unicode.IsSpace) < 0
}

func appendRecord(buf []byte, keyword string, postings index.PostingList) []byte {
	buf = append(buf, keyword...)
	buf = append(buf, RecordDelimiter)
	for i, id := range postings {
		if i > 0 {
			buf = append(buf, idSeparator)
		}
		buf = strconv.AppendUint(buf, id, 10)
	}
	return append(buf, recordEnd)
}

func parseRecord(line []byte) (Record, error) {
	line = bytes.TrimSuffix(line, []byte{recordEnd})
	sep := bytes.IndexByte(line, RecordDelimiter)
	if sep <= 0 {
		return Record{}, fmt.Errorf("malformed record: missing keyword delimiter")
	}
	rec := Record{
		Keyword:  string(line[:sep]),
		Postings: index.PostingList{},
	}
	rest := line[sep+1:]
	if len(rest) == 0 {
		return rec, nil
	}
	rec.Postings = make(index.PostingList, 0, bytes.Count(rest, []byte{idSeparator})+1)
	for len(rest) > 0 {
		field := rest
		if i := bytes.IndexByte(rest, idSeparator); i >= 0 {
			field, rest = rest[:i], rest[i+1:]
		} else {
			rest = nil
		}
		id, err := strconv.ParseUint(string(field), 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("malformed posting in record %q: %w", rec.Keyword, err)
		}
		rec.Postings = append(rec.Postings, id)
	}
	return rec, nil
}
