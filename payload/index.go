package payload

import "sync"

// Schema declares field name -> kind and is mutated by
// CreateFieldIndex/DeleteFieldIndex (spec.md §3 PayloadSchema).
type Schema map[string]FieldKind

// Index is one segment's payload index: the column store plus a small
// in-memory keyword posting list kept for fast exact-match pre-narrowing
// (spec.md §4.6 "Keyword: exact-match posting list").
type Index struct {
	Store  ColumnStore
	Schema Schema

	mu      sync.RWMutex
	keyword map[string]map[string][]uint32 // field -> value -> offsets
}

func NewIndex(store ColumnStore) *Index {
	return &Index{
		Store:   store,
		Schema:  make(Schema),
		keyword: make(map[string]map[string][]uint32),
	}
}

// CreateFieldIndex declares field as kind, enabling posting-list
// maintenance for it going forward (spec.md §3: CreateFieldIndex mutates
// PayloadSchema).
func (idx *Index) CreateFieldIndex(field string, kind FieldKind) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Schema[field] = kind
	if kind == Keyword {
		if _, ok := idx.keyword[field]; !ok {
			idx.keyword[field] = make(map[string][]uint32)
		}
	}
}

func (idx *Index) DeleteFieldIndex(field string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.Schema, field)
	delete(idx.keyword, field)
}

// Put writes the payload and updates the keyword posting list for any
// declared keyword fields present on the point.
func (idx *Index) Put(offset uint32, p Point) error {
	if err := idx.Store.Put(offset, p); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for field, posting := range idx.keyword {
		v, ok := p[field]
		if !ok {
			continue
		}
		for _, s := range keywordValues(v) {
			posting[s] = append(posting[s], offset)
		}
	}
	return nil
}

func keywordValues(v Value) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (idx *Index) Delete(offset uint32) error {
	return idx.Store.Delete(offset)
}

// MatchKeyword returns the offsets recorded for field=value in the
// posting list, an O(1) pre-narrowing step ahead of the full Filter.Check
// scan. Returns nil if field isn't keyword-indexed (caller falls back to
// FilterContext's per-point scan).
func (idx *Index) MatchKeyword(field, value string) []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	posting, ok := idx.keyword[field]
	if !ok {
		return nil
	}
	return append([]uint32(nil), posting[value]...)
}

// FilterContext builds the per-offset predicate HNSW search consumes
// directly as an hnsw.FilterFunc (spec.md §4.1: "the point scorer
// pre-checks each candidate against a filter context"). true = offset's
// payload passes filter.
func (idx *Index) FilterContext(filter Filter) func(offset uint32) bool {
	return func(offset uint32) bool {
		p, err := idx.Store.Get(offset)
		if err != nil {
			return false
		}
		return filter.Check(p)
	}
}
