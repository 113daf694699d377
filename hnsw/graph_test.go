package hnsw

import (
	"context"
	"math/rand"
	"testing"

	"github.com/vecstore/vecstore/vstorage"
)

func buildStorage(t *testing.T, vecs [][]float32) vstorage.Storage {
	t.Helper()
	s := vstorage.NewRAM(len(vecs[0]), vstorage.Euclid)
	for i, v := range vecs {
		if err := s.Put(uint32(i), v); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	return s
}

func gridVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = []float32{float32(i), float32(i) * 0.5}
	}
	return out
}

func TestGraphInsertAndSearchFindsNearest(t *testing.T) {
	vecs := gridVectors(200)
	storage := buildStorage(t, vecs)

	g, err := NewGraphLayersBuilder(Params{M: 8, UseHeuristic: true}, storage, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewGraphLayersBuilder: %v", err)
	}
	for i := range vecs {
		if err := g.Insert(uint32(i), nil); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	hits, err := g.Search(context.Background(), vecs[100], nil, nil, SearchParams{Top: 5, Ef: 32})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("Search returned no hits")
	}
	if hits[0].Offset != 100 {
		t.Fatalf("nearest hit = %d, want 100 (exact match)", hits[0].Offset)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i-1].Score > hits[i].Score {
			t.Fatalf("hits not in ascending euclid-score order at %d: %v", i, hits)
		}
	}
}

func TestSearchSkipsDeletedAndFiltered(t *testing.T) {
	vecs := gridVectors(50)
	storage := buildStorage(t, vecs)
	g, err := NewGraphLayersBuilder(Params{M: 6}, storage, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewGraphLayersBuilder: %v", err)
	}
	for i := range vecs {
		if err := g.Insert(uint32(i), nil); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	deleted := func(o uint32) bool { return o == 20 }
	hits, err := g.Search(context.Background(), vecs[20], nil, deleted, SearchParams{Top: 1, Ef: 16})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) > 0 && hits[0].Offset == 20 {
		t.Fatal("deleted offset 20 was returned")
	}

	rejectAll := func(uint32) bool { return false }
	hits, err = g.Search(context.Background(), vecs[5], rejectAll, nil, SearchParams{Top: 3, Ef: 16})
	if err != nil {
		t.Fatalf("Search with filter rejecting everything returned an error, want empty: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits when filter rejects everything, got %v", hits)
	}
}

func TestRAMStoragePutRejectsWrongDimension(t *testing.T) {
	storage := vstorage.NewRAM(4, vstorage.Cosine)
	if err := storage.Put(0, []float32{1, 2}); err == nil {
		t.Fatal("Put with wrong dimension should fail")
	}
}

func TestSearchOnEmptyGraphReturnsNoHits(t *testing.T) {
	storage := vstorage.NewRAM(3, vstorage.Dot)
	g, err := NewGraphLayersBuilder(Params{M: 4}, storage, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewGraphLayersBuilder: %v", err)
	}
	hits, err := g.Search(context.Background(), []float32{1, 0, 0}, nil, nil, SearchParams{Top: 5, Ef: 10})
	if err != nil {
		t.Fatalf("Search on empty graph: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits on empty graph, got %v", hits)
	}
}
