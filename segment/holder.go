package segment

import (
	"context"
	"sync"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/vstorage"
)

// Holder owns the set of segments a LocalShard serves (spec.md §3
// SegmentHolder: "Every non-deleted external id is present in exactly one
// appendable or one immutable segment").
type Holder struct {
	mu       sync.RWMutex
	segments map[string]Searchable
}

func NewHolder() *Holder {
	return &Holder{segments: make(map[string]Searchable)}
}

func (h *Holder) Add(id string, s Searchable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.segments[id] = s
}

func (h *Holder) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.segments, id)
}

// Swap atomically replaces oldIDs with add, implementing spec.md §4.2
// step 3: "Atomically swap {Proxy(S, W)} -> {S', W} in the holder".
func (h *Holder) Swap(oldIDs []string, add map[string]Searchable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range oldIDs {
		delete(h.segments, id)
	}
	for id, s := range add {
		h.segments[id] = s
	}
}

func (h *Holder) Get(id string) (Searchable, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.segments[id]
	return s, ok
}

func (h *Holder) All() map[string]Searchable {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]Searchable, len(h.segments))
	for k, v := range h.segments {
		out[k] = v
	}
	return out
}

func (h *Holder) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.segments)
}

func (h *Holder) UpsertInto(segmentID string, id PointID, version uint64, vecs map[string][]float32, p payload.Point) error {
	h.mu.RLock()
	s, ok := h.segments[segmentID]
	h.mu.RUnlock()
	if !ok {
		return cmn.NewNotFound("segment %s", segmentID)
	}
	return s.Upsert(id, version, vecs, p)
}

// DeleteEverywhere fans a delete out to every segment; segments that
// never saw id treat it as a no-op (spec.md §3: an id lives in exactly
// one segment, but the caller here doesn't need to know which).
func (h *Holder) DeleteEverywhere(id PointID) {
	h.mu.RLock()
	segs := make([]Searchable, 0, len(h.segments))
	for _, s := range h.segments {
		segs = append(segs, s)
	}
	h.mu.RUnlock()
	for _, s := range segs {
		s.Delete(id)
	}
}

// SearchAll fans the query out to every segment and merges to top-K
// (the per-shard leg feeding into spec.md §4.5's cross-shard merge).
func (h *Holder) SearchAll(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, metric vstorage.Metric, top, ef int) ([]SearchResult, error) {
	h.mu.RLock()
	segs := make([]Searchable, 0, len(h.segments))
	for _, s := range h.segments {
		segs = append(segs, s)
	}
	h.mu.RUnlock()

	var all []SearchResult
	for _, s := range segs {
		hits, err := s.Search(ctx, vectorName, query, filter, top, ef)
		if err != nil {
			return nil, err
		}
		all = append(all, hits...)
	}
	return mergeByScore(metric, all, top), nil
}
