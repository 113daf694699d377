package vstorage

import (
	"fmt"
	"sync"

	"github.com/vecstore/vecstore/cmn"
)

// Storage is the per-named-vector container a Segment owns (spec.md §3,
// §9 "Segment exclusively owns its VectorStorage"). Offsets are internal
// point offsets assigned by the segment's IdTracker; Storage itself knows
// nothing about external ids.
type Storage interface {
	Dim() int
	Metric() Metric
	Size() int
	// Get returns the vector at offset. The returned slice must not be
	// retained past the next mutating call (RAM storage may reuse it).
	Get(offset uint32) ([]float32, error)
	// Put writes (or overwrites) the vector at offset, growing storage as
	// needed. Returns a BadRequest *cmn.Error if dim mismatches.
	Put(offset uint32, v []float32) error
	Flush() error
}

// RawScorer is the capability HNSW search and build are written against
// (spec.md §4.1, §9): {score_point, score_internal, score_points, check_vector}.
// It closes over a query vector and a Storage, so a fresh RawScorer is
// built once per query/insert rather than threading the query through
// every call.
type RawScorer interface {
	ScorePoint(offset uint32) (float32, error)
	ScoreInternal(a, b uint32) (float32, error)
	ScorePoints(offsets []uint32) ([]float32, error)
	CheckVector(v []float32) error
	Ordering() Ordering
}

type rawScorer struct {
	storage Storage
	query   []float32
}

// NewRawScorer monomorphizes a scorer for one query vector against one
// storage's metric (spec.md §9: "Metric variants are chosen once per
// query").
func NewRawScorer(storage Storage, query []float32) (RawScorer, error) {
	if err := checkDim(storage.Dim(), len(query)); err != nil {
		return nil, err
	}
	return &rawScorer{storage: storage, query: query}, nil
}

func checkDim(want, got int) error {
	if want != got {
		return cmn.NewBadRequest("wrong vector dimension: want %d, got %d", want, got)
	}
	return nil
}

func (s *rawScorer) CheckVector(v []float32) error { return checkDim(s.storage.Dim(), len(v)) }

func (s *rawScorer) Ordering() Ordering { return OrderingFor(s.storage.Metric()) }

func (s *rawScorer) ScorePoint(offset uint32) (float32, error) {
	v, err := s.storage.Get(offset)
	if err != nil {
		return 0, err
	}
	return s.storage.Metric().Score(s.query, v), nil
}

func (s *rawScorer) ScoreInternal(a, b uint32) (float32, error) {
	va, err := s.storage.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.storage.Get(b)
	if err != nil {
		return 0, err
	}
	return s.storage.Metric().Score(va, vb), nil
}

func (s *rawScorer) ScorePoints(offsets []uint32) ([]float32, error) {
	out := make([]float32, len(offsets))
	for i, o := range offsets {
		sc, err := s.ScorePoint(o)
		if err != nil {
			return nil, err
		}
		out[i] = sc
	}
	return out, nil
}

// ramStorage is the appendable, in-memory VectorStorage used by fresh
// segments (spec.md §3 "appendable (mutable)").
type ramStorage struct {
	mu     sync.RWMutex
	dim    int
	metric Metric
	data   [][]float32
}

func NewRAM(dim int, metric Metric) Storage {
	return &ramStorage{dim: dim, metric: metric}
}

func (r *ramStorage) Dim() int      { return r.dim }
func (r *ramStorage) Metric() Metric { return r.metric }

func (r *ramStorage) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *ramStorage) Get(offset uint32) ([]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(offset) >= len(r.data) || r.data[offset] == nil {
		return nil, cmn.NewNotFound("vector at offset %d", offset)
	}
	return r.data[offset], nil
}

func (r *ramStorage) Put(offset uint32, v []float32) error {
	if err := checkDim(r.dim, len(v)); err != nil {
		return err
	}
	cp := make([]float32, len(v))
	copy(cp, v)

	r.mu.Lock()
	defer r.mu.Unlock()
	for int(offset) >= len(r.data) {
		r.data = append(r.data, nil)
	}
	r.data[offset] = cp
	return nil
}

func (r *ramStorage) Flush() error { return nil }

func (r *ramStorage) String() string {
	return fmt.Sprintf("ram-storage(dim=%d,metric=%s,n=%d)", r.dim, r.metric, r.Size())
}
