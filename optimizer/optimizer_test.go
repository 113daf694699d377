package optimizer

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/vstorage"
)

func testFields() []segment.VectorFieldConfig {
	return []segment.VectorFieldConfig{{Name: "v", Dim: 2, Metric: vstorage.Euclid, HNSW: hnsw.Params{M: 6}}}
}

func waitDone(t *testing.T, r Renewable) {
	t.Helper()
	select {
	case <-r.Done():
		if err := r.Err(); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestVacuumTaskCompactsTombstones(t *testing.T) {
	h := segment.NewHolder()
	s, err := segment.NewAppendable("s0", rand.New(rand.NewSource(1)), testFields(), nil)
	if err != nil {
		t.Fatalf("NewAppendable: %v", err)
	}
	for i := 0; i < 20; i++ {
		_ = s.Upsert(segment.NumPointID(uint64(i)), 1, map[string][]float32{"v": {float32(i), float32(i)}}, nil)
	}
	for i := 0; i < 10; i++ {
		s.Delete(segment.NumPointID(uint64(i)))
	}
	h.Add("s0", s)

	task := NewVacuumTask(h, "s0", rand.New(rand.NewSource(2)))
	task.Start(context.Background())
	waitDone(t, task)

	got, ok := h.Get("s0")
	if !ok {
		t.Fatal("s0 missing from holder after vacuum")
	}
	rebuilt, ok := got.(*segment.Segment)
	if !ok {
		t.Fatalf("s0 is %T, want *segment.Segment", got)
	}
	info := rebuilt.Info()
	if info.DeletedCount != 0 {
		t.Fatalf("DeletedCount = %d, want 0 after vacuum", info.DeletedCount)
	}
	if info.VectorCount != 10 {
		t.Fatalf("VectorCount = %d, want 10 after vacuum", info.VectorCount)
	}
	if !info.VectorIndexed {
		t.Fatal("vacuumed segment should be marked Optimized")
	}
}

func TestMergeTaskFoldsSegmentsTogether(t *testing.T) {
	h := segment.NewHolder()
	a, _ := segment.NewAppendable("a", rand.New(rand.NewSource(3)), testFields(), nil)
	b, _ := segment.NewAppendable("b", rand.New(rand.NewSource(4)), testFields(), nil)
	for i := 0; i < 5; i++ {
		_ = a.Upsert(segment.NumPointID(uint64(i)), 1, map[string][]float32{"v": {float32(i), float32(i)}}, nil)
	}
	for i := 5; i < 10; i++ {
		_ = b.Upsert(segment.NumPointID(uint64(i)), 1, map[string][]float32{"v": {float32(i), float32(i)}}, nil)
	}
	h.Add("a", a)
	h.Add("b", b)

	task := NewMergeTask(h, []string{"a", "b"}, "merged", rand.New(rand.NewSource(5)))
	task.Start(context.Background())
	waitDone(t, task)

	got, ok := h.Get("merged")
	if !ok {
		t.Fatal("merged segment missing from holder")
	}
	merged := got.(*segment.Segment)
	if merged.Info().VectorCount != 10 {
		t.Fatalf("merged VectorCount = %d, want 10", merged.Info().VectorCount)
	}
	if _, ok := h.Get("a"); ok {
		t.Fatal("source segment a should have been removed by merge")
	}
}

func TestIndexingTaskPromotesMmapAndPayload(t *testing.T) {
	dir := t.TempDir()
	h := segment.NewHolder()
	pidx := payload.NewIndex(payload.NewMemColumnStore())
	pidx.CreateFieldIndex("tag", payload.Keyword)
	s, _ := segment.NewAppendable("s0", rand.New(rand.NewSource(6)), testFields(), pidx)
	for i := 0; i < 5; i++ {
		_ = s.Upsert(segment.NumPointID(uint64(i)), 1, map[string][]float32{"v": {float32(i), float32(i)}}, payload.Point{"tag": "x"})
	}
	h.Add("s0", s)

	th := Thresholds{MemmapThreshold: 1, PayloadIndexingThreshold: 1}
	task := NewIndexingTask(h, "s0", dir, dir, th)
	task.Start(context.Background())
	waitDone(t, task)

	info := s.Info()
	if !info.MMapped {
		t.Fatal("expected segment to be promoted to mmap")
	}
	if !info.PayloadIndexed {
		t.Fatal("expected segment payload to be promoted")
	}
	hits, err := s.Search(context.Background(), "v", []float32{4, 4}, nil, 3, 16)
	if err != nil {
		t.Fatalf("Search after promotion: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected search to still find hits after mmap promotion")
	}
}

func TestSelectVacuumPicksWorstRatio(t *testing.T) {
	infos := map[string]segment.Info{
		"low":  {VectorCount: 90, DeletedCount: 10},
		"high": {VectorCount: 50, DeletedCount: 50},
	}
	id, ok := SelectVacuum(infos, DefaultThresholds())
	if !ok || id != "high" {
		t.Fatalf("SelectVacuum = (%q, %v), want (\"high\", true)", id, ok)
	}
}

func TestSelectMergeRespectsSegmentNumber(t *testing.T) {
	th := Thresholds{DefaultSegmentNumber: 2}
	infos := map[string]segment.Info{
		"a": {VectorCount: 10},
		"b": {VectorCount: 100},
	}
	if got := SelectMerge(infos, th); got != nil {
		t.Fatalf("SelectMerge = %v, want nil at segment count", got)
	}
	infos["c"] = segment.Info{VectorCount: 5}
	got := SelectMerge(infos, th)
	if len(got) == 0 {
		t.Fatal("expected SelectMerge to return candidates once over DefaultSegmentNumber")
	}
}

// fakeRenewable blocks until Stop is called, giving registry tests a
// deterministic "still running" window to assert against.
type fakeRenewable struct {
	kind Kind
	id   string
	done chan struct{}
}

func newFakeRenewable(kind Kind, id string) *fakeRenewable {
	return &fakeRenewable{kind: kind, id: id, done: make(chan struct{})}
}

func (f *fakeRenewable) Kind() Kind            { return f.kind }
func (f *fakeRenewable) SegmentID() string     { return f.id }
func (f *fakeRenewable) Start(context.Context) {}
func (f *fakeRenewable) Stop()                 { close(f.done) }
func (f *fakeRenewable) Done() <-chan struct{} { return f.done }
func (f *fakeRenewable) Err() error            { return nil }

func TestRegistryRenewReusesRunningTask(t *testing.T) {
	reg := NewRegistry()
	first := newFakeRenewable(Vacuum, "s0")
	got1 := reg.Renew(context.Background(), first)
	second := newFakeRenewable(Vacuum, "s0")
	got2 := reg.Renew(context.Background(), second)
	if got1 != got2 {
		t.Fatal("Renew should reuse the first task while it is still running")
	}
	if !reg.Running(Vacuum, "s0") {
		t.Fatal("Running should report true while the task has not finished")
	}
	first.Stop()
	if reg.Running(Vacuum, "s0") {
		t.Fatal("Running should report false once the task's Done channel is closed")
	}
}
