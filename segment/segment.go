package segment

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/vstorage"
)

// VectorFieldConfig declares one named vector a segment indexes (SPEC_FULL
// §3: "a collection declares one or more named vectors").
type VectorFieldConfig struct {
	Name   string
	Dim    int
	Metric vstorage.Metric
	HNSW   hnsw.Params
}

type vectorField struct {
	storage vstorage.Storage
	graph   *hnsw.GraphLayersBuilder
}

// Kind distinguishes appendable (mutable) from optimized (immutable)
// segments (spec.md §3 Segment).
type Kind int

const (
	Appendable Kind = iota
	Optimized
)

// Searchable is the interface both Segment and ProxySegment satisfy, so a
// Holder can treat a segment mid-optimization the same as a plain one.
type Searchable interface {
	Upsert(id PointID, version uint64, vecs map[string][]float32, p payload.Point) error
	Delete(id PointID)
	Search(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, top, ef int) ([]SearchResult, error)
}

// Segment is one append-only or optimized shard of a collection's data
// (spec.md §3 Segment, §4.2).
type Segment struct {
	ID   string
	mu   sync.RWMutex
	kind Kind

	ids     *IdTracker
	tomb    *Tombstones
	payload *payload.Index
	vectors map[string]*vectorField

	rng *rand.Rand

	mmapped        bool
	payloadIndexed bool
}

// NewAppendable builds a fresh, empty, mutable segment with one HNSW
// graph + RAM vector storage per declared field (spec.md §3 "appendable
// (mutable)").
func NewAppendable(id string, rng *rand.Rand, fields []VectorFieldConfig, pidx *payload.Index) (*Segment, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	s := &Segment{
		ID:      id,
		kind:    Appendable,
		ids:     NewIdTracker(),
		tomb:    NewTombstones(),
		payload: pidx,
		vectors: make(map[string]*vectorField, len(fields)),
		rng:     rng,
	}
	for _, f := range fields {
		storage := vstorage.NewRAM(f.Dim, f.Metric)
		g, err := hnsw.NewGraphLayersBuilder(f.HNSW, storage, rng)
		if err != nil {
			return nil, cmn.NewServiceError(err, "segment %s: build graph for vector %q", id, f.Name)
		}
		s.vectors[f.Name] = &vectorField{storage: storage, graph: g}
	}
	return s, nil
}

func (s *Segment) Kind() Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

func (s *Segment) MarkOptimized() {
	s.mu.Lock()
	s.kind = Optimized
	s.mu.Unlock()
}

func (s *Segment) MetricFor(vectorName string) (vstorage.Metric, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.vectors[vectorName]
	if !ok {
		return 0, false
	}
	return f.storage.Metric(), true
}

// Upsert writes id's named vectors and payload at version; a no-op if
// version is not strictly newer than id's recorded version (spec.md §4.2
// invariant — this is what makes WAL replay idempotent).
func (s *Segment) Upsert(id PointID, version uint64, vecs map[string][]float32, p payload.Point) error {
	s.mu.Lock()
	offset := s.ids.Assign(id)
	if !s.ids.CheckVersion(offset, version) {
		s.mu.Unlock()
		return nil
	}
	s.ids.SetVersion(offset, version)
	s.mu.Unlock()

	for name, vec := range vecs {
		field, ok := s.vectors[name]
		if !ok {
			continue
		}
		if err := field.storage.Put(offset, vec); err != nil {
			return err
		}
		if err := field.graph.Insert(offset, s.tomb.IsDeleted); err != nil {
			return err
		}
	}
	if len(p) > 0 && s.payload != nil {
		if err := s.payload.Put(offset, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Segment) Delete(id PointID) {
	s.mu.RLock()
	offset, ok := s.ids.Lookup(id)
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.tomb.Delete(offset)
	if s.payload != nil {
		_ = s.payload.Delete(offset)
	}
}

func (s *Segment) SetPayload(id PointID, p payload.Point) error {
	s.mu.RLock()
	offset, ok := s.ids.Lookup(id)
	s.mu.RUnlock()
	if !ok {
		return cmn.NewNotFound("segment %s: point not present", s.ID)
	}
	if s.payload == nil {
		return cmn.NewBadRequest("segment %s: no payload index configured", s.ID)
	}
	return s.payload.Put(offset, p)
}

// MutatePayload reads id's current payload (an empty Point if none is
// set yet), passes it through fn, and writes the result back — the one
// read-modify-write primitive DeletePayload/ClearPayload build on.
func (s *Segment) MutatePayload(id PointID, fn func(payload.Point) payload.Point) error {
	s.mu.RLock()
	offset, ok := s.ids.Lookup(id)
	s.mu.RUnlock()
	if !ok {
		return cmn.NewNotFound("segment %s: point not present", s.ID)
	}
	if s.payload == nil {
		return cmn.NewBadRequest("segment %s: no payload index configured", s.ID)
	}
	cur, _ := s.payload.Store.Get(offset)
	return s.payload.Put(offset, fn(cur))
}

// SearchResult pairs a hit with its external id (internal offsets never
// escape the segment boundary).
type SearchResult struct {
	ID    PointID
	Score float32
}

// Get hydrates id's current vectors and payload, for callers (query
// result merge) that need to fill in with-vector/with-payload after a
// search has already happened. found is false for an id this segment
// never had, or has since deleted.
func (s *Segment) Get(id PointID) (vecs map[string][]float32, p payload.Point, found bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offset, ok := s.ids.Lookup(id)
	if !ok || s.tomb.IsDeleted(offset) {
		return nil, nil, false
	}
	vecs = make(map[string][]float32, len(s.vectors))
	for name, f := range s.vectors {
		if v, err := f.storage.Get(offset); err == nil {
			vecs[name] = v
		}
	}
	if s.payload != nil {
		p, _ = s.payload.Store.Get(offset)
	}
	return vecs, p, true
}

func (s *Segment) searchInternal(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, extraDeleted hnsw.DeletedFunc, top, ef int) ([]SearchResult, error) {
	s.mu.RLock()
	field, ok := s.vectors[vectorName]
	s.mu.RUnlock()
	if !ok {
		return nil, cmn.NewBadRequest("segment %s: unknown vector %q", s.ID, vectorName)
	}
	deleted := s.tomb.IsDeleted
	if extraDeleted != nil {
		deleted = func(o uint32) bool { return s.tomb.IsDeleted(o) || extraDeleted(o) }
	}
	hits, err := field.graph.Search(ctx, query, filter, deleted, hnsw.SearchParams{Top: top, Ef: ef})
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		id, ok := s.ids.ExternalID(h.Offset)
		if !ok {
			continue
		}
		out = append(out, SearchResult{ID: id, Score: h.Score})
	}
	return out, nil
}

func (s *Segment) Search(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, top, ef int) ([]SearchResult, error) {
	return s.searchInternal(ctx, vectorName, query, filter, nil, top, ef)
}

// Info summarizes the segment for optimizer worst-segment selection
// (spec.md §4.2).
type Info struct {
	ID             string
	Kind           Kind
	VectorCount    int
	DeletedCount   int
	HasPayload     bool
	MMapped        bool
	VectorIndexed  bool
	PayloadIndexed bool
}

func (s *Segment) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:             s.ID,
		Kind:           s.kind,
		VectorCount:    s.ids.Len() - s.tomb.Count(),
		DeletedCount:   s.tomb.Count(),
		HasPayload:     s.payload != nil,
		MMapped:        s.mmapped,
		VectorIndexed:  s.kind == Optimized,
		PayloadIndexed: s.payloadIndexed,
	}
}

// PromoteToMmap rebuilds every declared vector's storage as a read-only
// memory-mapped file under dir, with a fresh graph built over that
// storage (spec.md §4.2 Indexing: "promote ... storage to ... mmap once
// a segment exceeds its memmap threshold").
func (s *Segment) PromoteToMmap(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, f := range s.vectors {
		path := filepath.Join(dir, s.ID+"-"+name+".vec")
		mm, err := vstorage.BuildMmap(path, f.storage)
		if err != nil {
			return cmn.NewServiceError(err, "segment %s: promote vector %q to mmap", s.ID, name)
		}
		g, err := hnsw.NewGraphLayersBuilder(f.graph.Params(), mm, s.rng)
		if err != nil {
			return cmn.NewServiceError(err, "segment %s: rebuild graph over mmap for %q", s.ID, name)
		}
		s.ids.Range(func(offset uint32, _ PointID) bool {
			if s.tomb.IsDeleted(offset) {
				return true
			}
			if err := g.Insert(offset, s.tomb.IsDeleted); err != nil {
				return false
			}
			return true
		})
		f.storage = mm
		f.graph = g
	}
	s.mmapped = true
	return nil
}

// PromotePayload switches the payload index to an on-disk buntdb-backed
// column store at path, copying every live point across (spec.md §4.2
// Indexing: "promote ... payload index once a segment exceeds its
// payload indexing threshold").
func (s *Segment) PromotePayload(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return nil
	}
	store, err := payload.NewBuntColumnStore(path)
	if err != nil {
		return cmn.NewServiceError(err, "segment %s: promote payload", s.ID)
	}
	newIdx := payload.NewIndex(store)
	for field, kind := range s.payload.Schema {
		newIdx.CreateFieldIndex(field, kind)
	}
	oldStore := s.payload.Store
	s.ids.Range(func(offset uint32, _ PointID) bool {
		if s.tomb.IsDeleted(offset) {
			return true
		}
		if p, err := oldStore.Get(offset); err == nil {
			_ = newIdx.Put(offset, p)
		}
		return true
	})
	s.payload = newIdx
	s.payloadIndexed = true
	return nil
}

// PayloadSchema returns a copy of the segment's payload field schema, or
// nil if it has no payload index, for callers (optimizer rebuild) that
// need to construct an equivalent fresh index over new storage.
func (s *Segment) PayloadSchema() payload.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.payload == nil {
		return nil
	}
	out := make(payload.Schema, len(s.payload.Schema))
	for k, v := range s.payload.Schema {
		out[k] = v
	}
	return out
}

// FieldConfigs reconstructs the VectorFieldConfig set this segment was
// built with, for callers (optimizer rebuild) that need to build an
// equivalent empty segment over new storage.
func (s *Segment) FieldConfigs() []VectorFieldConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VectorFieldConfig, 0, len(s.vectors))
	for name, f := range s.vectors {
		out = append(out, VectorFieldConfig{
			Name:   name,
			Dim:    f.storage.Dim(),
			Metric: f.storage.Metric(),
			HNSW:   f.graph.Params(),
		})
	}
	return out
}

// Points exposes one representative read path for rebuild: it calls fn
// once per currently-live (non-deleted) point, with that point's id,
// version, vectors and payload, in offset order.
func (s *Segment) Points(fn func(id PointID, version uint64, vecs map[string][]float32, p payload.Point) error) error {
	s.mu.RLock()
	n := s.ids.Len()
	fields := s.vectors
	pidx := s.payload
	tomb := s.tomb
	s.mu.RUnlock()

	_ = n
	for offset := uint32(0); ; offset++ {
		id, ok := s.ids.ExternalID(offset)
		if !ok {
			break
		}
		if tomb.IsDeleted(offset) {
			continue
		}
		vecs := make(map[string][]float32, len(fields))
		for name, f := range fields {
			v, err := f.storage.Get(offset)
			if err != nil {
				continue
			}
			vecs[name] = v
		}
		var p payload.Point
		if pidx != nil {
			if got, err := pidx.Store.Get(offset); err == nil {
				p = got
			}
		}
		if err := fn(id, s.ids.Version(offset), vecs, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Segment) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.vectors {
		if err := f.storage.Flush(); err != nil {
			return err
		}
	}
	return nil
}
