package index

import "sort"

// Memtable is the mutable in-memory keyword -> postings map holding documents
// that have not been flushed yet. Its size is the number of distinct
// keywords. It is not safe for concurrent use; the engine lock guards it.
type Memtable struct {
	postings map[string]PostingList
	docCount int
	count    int
	lastDoc  uint64
}

func NewMemtable() *Memtable {
	return &Memtable{
		postings: make(map[string]PostingList),
	}
}

// Add appends docID to the posting list of every keyword, once per
// occurrence. Empty keywords are skipped.
func (m *Memtable) Add(docID uint64, keywords []string) int {
	added := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		m.postings[kw] = append(m.postings[kw], docID)
		added++
	}
	m.count += added
	m.docCount++
	if docID > m.lastDoc {
		m.lastDoc = docID
	}
	return added
}

// Postings returns a copy of the posting list for keyword, or an empty list
// when the keyword is absent. Lookups never create entries.
func (m *Memtable) Postings(keyword string) PostingList {
	list, ok := m.postings[keyword]
	if !ok {
		return PostingList{}
	}
	out := make(PostingList, len(list))
	copy(out, list)
	return out
}

// Snapshot returns a deep copy of every entry, sorted by keyword.
func (m *Memtable) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.postings))
	for kw, list := range m.postings {
		cp := make(PostingList, len(list))
		copy(cp, list)
		entries = append(entries, TermEntry{Keyword: kw, Postings: cp})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Keyword < entries[j].Keyword
	})
	return entries
}

// Size returns the number of distinct keywords.
func (m *Memtable) Size() int {
	return len(m.postings)
}

// PostingCount returns the number of postings held across all keywords.
func (m *Memtable) PostingCount() int {
	return m.count
}

func (m *Memtable) DocCount() int {
	return m.docCount
}

// LastDocument returns the highest document id added since the last Reset.
// It is only meaningful when DocCount is non-zero.
func (m *Memtable) LastDocument() uint64 {
	return m.lastDoc
}

func (m *Memtable) Reset() {
	m.postings = make(map[string]PostingList)
	m.docCount = 0
	m.count = 0
	m.lastDoc = 0
}
