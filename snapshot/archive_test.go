package snapshot

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/vstorage"
)

func testFields() []segment.VectorFieldConfig {
	return []segment.VectorFieldConfig{{Name: "v", Dim: 2, Metric: vstorage.Euclid, HNSW: hnsw.Params{M: 6}}}
}

func buildTestHolder(t *testing.T) *segment.Holder {
	t.Helper()
	pidx := payload.NewIndex(payload.NewMemColumnStore())
	pidx.CreateFieldIndex("color", payload.Keyword)
	s, err := segment.NewAppendable("s0", rand.New(rand.NewSource(1)), testFields(), pidx)
	if err != nil {
		t.Fatalf("NewAppendable: %v", err)
	}
	for i := uint64(1); i <= 10; i++ {
		if err := s.Upsert(segment.NumPointID(i), 1, map[string][]float32{"v": {float32(i), float32(i)}}, payload.Point{"color": "red"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	h := segment.NewHolder()
	h.Add("s0", s)
	return h
}

func TestBuildEncodeDecodeRestoreRoundTrip(t *testing.T) {
	h := buildTestHolder(t)
	desc, err := BuildDescriptor("snap1", 1000, h)
	if err != nil {
		t.Fatalf("BuildDescriptor: %v", err)
	}
	if len(desc.Segments) != 1 || len(desc.Segments[0].Points) != 10 {
		t.Fatalf("expected 1 segment with 10 points, got %+v", desc.Segments)
	}

	blob, err := Encode(desc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if desc.Checksum == "" {
		t.Fatal("expected Encode to stamp a checksum")
	}

	decoded, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Checksum != desc.Checksum {
		t.Fatalf("checksum mismatch: %s vs %s", decoded.Checksum, desc.Checksum)
	}
	if len(decoded.Segments) != 1 || len(decoded.Segments[0].Points) != 10 {
		t.Fatalf("expected restored descriptor to carry 10 points, got %+v", decoded.Segments)
	}

	restored, err := Restore(decoded, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	results, err := restored.SearchAll(context.Background(), "v", []float32{5, 5}, nil, vstorage.Euclid, 3, 32)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected restored holder to be searchable")
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	h := buildTestHolder(t)
	desc, err := BuildDescriptor("snap1", 1000, h)
	if err != nil {
		t.Fatalf("BuildDescriptor: %v", err)
	}
	blob, err := Encode(desc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupted := append([]byte(nil), blob...)
	corrupted[0] ^= 0xFF

	decoded, err := Decode(corrupted)
	if err == nil && decoded.Checksum == desc.Checksum {
		t.Fatal("expected corruption to change the recomputed checksum")
	}
}

func TestLocalBackendPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBackend(dir)
	path := ArchivePath("coll", "shard0", "snap1")
	data := []byte("hello archive")

	if err := b.Put(context.Background(), path, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := b.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("expected %q, got %q", data, got)
	}
	if path != filepath.ToSlash(filepath.Join("coll", "shard0", "snap1")) {
		t.Fatalf("unexpected archive path shape: %s", path)
	}
}
