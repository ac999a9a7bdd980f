package index

// PostingList is the ordered sequence of document ids containing a keyword
// within one storage tier. Ids appear in ingestion order and may repeat.
type PostingList []uint64

// Location addresses one keyword record on disk: the segment holding it and
// the record's 0-based ordinal within that segment.
type Location struct {
	SegmentID uint64 `json:"s"`
	Offset    int    `json:"o"`
}

// TermEntry pairs a keyword with its postings, the unit written to a segment.
type TermEntry struct {
	Keyword  string
	Postings PostingList
}
