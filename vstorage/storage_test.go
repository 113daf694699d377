package vstorage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRAMStorageGetPutRoundTrip(t *testing.T) {
	s := NewRAM(3, Euclid)
	if err := s.Put(0, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("Get returned %v, want [1 2 3]", got)
	}
	if s.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", s.Size())
	}
}

func TestRAMStoragePutWrongDimension(t *testing.T) {
	s := NewRAM(3, Dot)
	if err := s.Put(0, []float32{1, 2}); err == nil {
		t.Fatal("Put with wrong dimension should fail")
	}
}

func TestRAMStorageGetMissingOffset(t *testing.T) {
	s := NewRAM(2, Dot)
	if _, err := s.Get(5); err == nil {
		t.Fatal("Get on never-written offset should fail")
	}
}

func TestRawScorerRejectsWrongQueryDimension(t *testing.T) {
	s := NewRAM(3, Cosine)
	_ = s.Put(0, []float32{1, 0, 0})
	if _, err := NewRawScorer(s, []float32{1, 0}); err == nil {
		t.Fatal("NewRawScorer with wrong-dimension query should fail")
	}
}

func TestRawScorerScoresMatchMetric(t *testing.T) {
	s := NewRAM(2, Dot)
	_ = s.Put(0, []float32{2, 0})
	scorer, err := NewRawScorer(s, []float32{3, 0})
	if err != nil {
		t.Fatalf("NewRawScorer: %v", err)
	}
	got, err := scorer.ScorePoint(0)
	if err != nil {
		t.Fatalf("ScorePoint: %v", err)
	}
	if got != 6 {
		t.Fatalf("ScorePoint = %v, want 6 (dot of [2,0] and [3,0])", got)
	}
}

func TestMmapBuildAndOpenRoundTrip(t *testing.T) {
	src := NewRAM(2, Euclid)
	for i := 0; i < 10; i++ {
		if err := src.Put(uint32(i), []float32{float32(i), float32(i) * 2}); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}
	path := filepath.Join(t.TempDir(), "vecs.bin")
	m, err := BuildMmap(path, src)
	if err != nil {
		t.Fatalf("BuildMmap: %v", err)
	}
	defer m.(interface{ Close() error }).Close()

	for i := 0; i < 10; i++ {
		got, err := m.Get(uint32(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if got[0] != float32(i) || got[1] != float32(i)*2 {
			t.Fatalf("Get(%d) = %v, want [%d %d]", i, got, i, i*2)
		}
	}
	if err := m.Put(0, []float32{1, 1}); err == nil {
		t.Fatal("Put on mmap storage should fail: read-only")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("mmap-backed file missing on disk: %v", err)
	}
}
