package segment

import (
	"context"
	"math/rand"
	"testing"

	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/vstorage"
)

func testFields() []VectorFieldConfig {
	return []VectorFieldConfig{{Name: "v", Dim: 2, Metric: vstorage.Euclid, HNSW: hnsw.Params{M: 6}}}
}

func TestUpsertSearchAndDelete(t *testing.T) {
	pidx := payload.NewIndex(payload.NewMemColumnStore())
	s, err := NewAppendable("s0", rand.New(rand.NewSource(1)), testFields(), pidx)
	if err != nil {
		t.Fatalf("NewAppendable: %v", err)
	}
	for i := 0; i < 30; i++ {
		id := NumPointID(uint64(i))
		vec := map[string][]float32{"v": {float32(i), float32(i)}}
		if err := s.Upsert(id, 1, vec, payload.Point{"i": i}); err != nil {
			t.Fatalf("Upsert(%d): %v", i, err)
		}
	}

	hits, err := s.Search(context.Background(), "v", []float32{10, 10}, nil, 3, 16)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].ID.Num != 10 {
		t.Fatalf("expected nearest hit to be id 10, got %v", hits)
	}

	s.Delete(NumPointID(10))
	hits, err = s.Search(context.Background(), "v", []float32{10, 10}, nil, 3, 16)
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	for _, h := range hits {
		if h.ID.Num == 10 {
			t.Fatal("deleted id 10 still returned by search")
		}
	}
}

func TestUpsertIsIdempotentUnderStaleVersion(t *testing.T) {
	s, err := NewAppendable("s0", rand.New(rand.NewSource(2)), testFields(), nil)
	if err != nil {
		t.Fatalf("NewAppendable: %v", err)
	}
	id := NumPointID(1)
	if err := s.Upsert(id, 5, map[string][]float32{"v": {1, 1}}, nil); err != nil {
		t.Fatalf("Upsert v5: %v", err)
	}
	// A replayed older/equal version must be a no-op (spec.md §4.2 invariant).
	if err := s.Upsert(id, 5, map[string][]float32{"v": {9, 9}}, nil); err != nil {
		t.Fatalf("Upsert v5 replay: %v", err)
	}
	off, _ := s.ids.Lookup(id)
	v, err := s.vectors["v"].storage.Get(off)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v[0] != 1 {
		t.Fatalf("stale replay overwrote vector: got %v, want [1 1]", v)
	}
}

func TestProxySegmentMergesBaseAndWriteReads(t *testing.T) {
	pidx := payload.NewIndex(payload.NewMemColumnStore())
	base, err := NewAppendable("base", rand.New(rand.NewSource(3)), testFields(), pidx)
	if err != nil {
		t.Fatalf("NewAppendable base: %v", err)
	}
	for i := 0; i < 10; i++ {
		_ = base.Upsert(NumPointID(uint64(i)), 1, map[string][]float32{"v": {float32(i), float32(i)}}, nil)
	}
	base.MarkOptimized()

	write, err := NewAppendable("write", rand.New(rand.NewSource(4)), testFields(), pidx)
	if err != nil {
		t.Fatalf("NewAppendable write: %v", err)
	}
	_ = write.Upsert(NumPointID(100), 1, map[string][]float32{"v": {5, 5}}, nil)

	proxy := NewProxySegment(base, write)
	hits, err := proxy.Search(context.Background(), "v", []float32{5, 5}, nil, 3, 16)
	if err != nil {
		t.Fatalf("proxy Search: %v", err)
	}
	foundWrite := false
	for _, h := range hits {
		if h.ID.Num == 100 {
			foundWrite = true
		}
	}
	if !foundWrite {
		t.Fatalf("expected proxy search to surface a point only present in W, got %v", hits)
	}

	proxy.Delete(NumPointID(5))
	hits, err = proxy.Search(context.Background(), "v", []float32{5, 5}, nil, 10, 32)
	if err != nil {
		t.Fatalf("proxy Search after delete: %v", err)
	}
	for _, h := range hits {
		if h.ID.Num == 5 {
			t.Fatal("proxy delete against base should be masked via overlay")
		}
	}
}

func TestHolderSwapReplacesSegments(t *testing.T) {
	h := NewHolder()
	s1, _ := NewAppendable("s1", rand.New(rand.NewSource(5)), testFields(), nil)
	h.Add("s1", s1)
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
	s2, _ := NewAppendable("s2", rand.New(rand.NewSource(6)), testFields(), nil)
	h.Swap([]string{"s1"}, map[string]Searchable{"s2": s2})
	if _, ok := h.Get("s1"); ok {
		t.Fatal("s1 should have been removed by Swap")
	}
	if _, ok := h.Get("s2"); !ok {
		t.Fatal("s2 should have been added by Swap")
	}
}
