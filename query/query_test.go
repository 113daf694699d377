package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/vstorage"
	"github.com/vecstore/vecstore/wal"
)

func testFields() []segment.VectorFieldConfig {
	return []segment.VectorFieldConfig{{Name: "v", Dim: 2, Metric: vstorage.Euclid, HNSW: hnsw.Params{M: 6}}}
}

func newTestShard(t *testing.T, dir, id string) *shard.LocalShard {
	t.Helper()
	s, err := shard.Open(id, filepath.Join(dir, id+".wal"), testFields(), payload.NewIndex(payload.NewMemColumnStore()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func seedPoint(t *testing.T, s *shard.LocalShard, n uint64, x, y float32) {
	t.Helper()
	body, err := shard.EncodeUpdate(shard.UpsertRequest{
		ID: segment.NumPointID(n), Version: 1,
		Vectors: map[string][]float32{"v": {x, y}},
		Payload: payload.Point{"n": float64(n)},
	})
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}
	if err := s.Apply(wal.UpsertPoints, body); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestPlanSimpleVectorQueryIsALeaf(t *testing.T) {
	req := ShardQueryRequest{
		Query: &ScoringQuery{VectorName: "v", Vector: []float32{0, 0}, Metric: vstorage.Euclid},
		Limit: 5,
	}
	planned, err := Plan(req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(planned.Batch) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(planned.Batch))
	}
	if planned.Batch[0].Top != 5 {
		t.Fatalf("expected Top=offset+limit=5, got %d", planned.Batch[0].Top)
	}
	if planned.Plan.Kind != MergeLeaf || planned.Plan.BatchIndex != 0 {
		t.Fatalf("expected a leaf referencing batch 0, got %+v", planned.Plan)
	}
}

func TestPlanFusionRequiresAtLeastOnePrefetch(t *testing.T) {
	req := ShardQueryRequest{Query: &ScoringQuery{Fusion: true}, Limit: 5}
	if _, err := Plan(req); err == nil {
		t.Fatal("expected an error for a fusion query with no prefetches")
	}
}

func TestPlanFusionFlattensPrefetchesAndForcesNothingExtra(t *testing.T) {
	req := ShardQueryRequest{
		Query: &ScoringQuery{Fusion: true},
		Limit: 4,
		Prefetches: []ShardQueryRequest{
			{Query: &ScoringQuery{VectorName: "v", Vector: []float32{1, 0}, Metric: vstorage.Euclid}, Limit: 10},
			{Query: &ScoringQuery{VectorName: "v", Vector: []float32{0, 1}, Metric: vstorage.Euclid}, Limit: 10},
		},
	}
	planned, err := Plan(req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(planned.Batch) != 2 {
		t.Fatalf("expected 2 batch entries, got %d", len(planned.Batch))
	}
	if planned.Plan.Kind != MergeFusionRRF || len(planned.Plan.Children) != 2 {
		t.Fatalf("expected a fusion root with 2 children, got %+v", planned.Plan)
	}
	if planned.Batch[0].WithVector || planned.Batch[1].WithVector {
		t.Fatal("expected fusion prefetch leaves not to be forced to fetch vectors")
	}
}

func TestPlanRescoreForcesVectorHydrationOnDescendants(t *testing.T) {
	req := ShardQueryRequest{
		Query: &ScoringQuery{VectorName: "v", Vector: []float32{1, 1}, Metric: vstorage.Euclid},
		Limit: 3,
		Prefetches: []ShardQueryRequest{
			{Query: &ScoringQuery{VectorName: "v", Vector: []float32{1, 0}, Metric: vstorage.Euclid}, Limit: 10},
		},
	}
	planned, err := Plan(req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if planned.Plan.Kind != MergeRescore {
		t.Fatalf("expected a rescore root, got %+v", planned.Plan)
	}
	if !planned.Batch[0].WithVector {
		t.Fatal("expected the prefetch leaf to be forced to fetch vectors for rescoring")
	}
}

func TestMergeShardListsDedupsKeepsFirstAndOrders(t *testing.T) {
	a := segment.NumPointID(1)
	b := segment.NumPointID(2)
	perShard := map[string][]ScoredPoint{
		"s0": {{ID: a, Score: 1}, {ID: b, Score: 5}},
		"s1": {{ID: b, Score: 9}}, // duplicate of b, different score: first (s0) wins
	}
	merged := mergeShardLists(vstorage.OrderingFor(vstorage.Dot), []string{"s0", "s1"}, perShard, 10)
	if len(merged) != 2 {
		t.Fatalf("expected 2 deduped points, got %d", len(merged))
	}
	if merged[0].ID != b || merged[0].Score != 5 {
		t.Fatalf("expected b (score 5, first-seen) ranked first, got %+v", merged[0])
	}
}

func TestRunSingleShardVectorSearchReturnsNearest(t *testing.T) {
	dir := t.TempDir()
	s := newTestShard(t, dir, "shard0")
	seedPoint(t, s, 1, 0, 0)
	seedPoint(t, s, 2, 10, 10)
	seedPoint(t, s, 3, 1, 1)

	req := ShardQueryRequest{
		Query:       &ScoringQuery{VectorName: "v", Vector: []float32{0, 0}, Metric: vstorage.Euclid},
		Limit:       2,
		WithPayload: true,
	}
	planned, err := Plan(req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	results, err := Run(context.Background(), map[string]Shard{"shard0": s}, planned)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != segment.NumPointID(1) {
		t.Fatalf("expected point 1 nearest, got %+v", results[0].ID)
	}
	if results[0].Payload["n"] != float64(1) {
		t.Fatalf("expected with-payload to hydrate the payload, got %+v", results[0].Payload)
	}
}

func TestRunMergesAcrossShards(t *testing.T) {
	dir := t.TempDir()
	s0 := newTestShard(t, dir, "shard0")
	s1 := newTestShard(t, dir, "shard1")
	seedPoint(t, s0, 1, 0, 0)
	seedPoint(t, s1, 2, 100, 100)

	req := ShardQueryRequest{
		Query: &ScoringQuery{VectorName: "v", Vector: []float32{0, 0}, Metric: vstorage.Euclid},
		Limit: 10,
	}
	planned, err := Plan(req)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	results, err := Run(context.Background(), map[string]Shard{"shard0": s0, "shard1": s1}, planned)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected points from both shards merged, got %d", len(results))
	}
	if results[0].ID != segment.NumPointID(1) {
		t.Fatalf("expected the closer point first, got %+v", results[0].ID)
	}
}

// TestFusionRRFMatchesSpecExample exercises spec.md §8 scenario 6
// directly against the merge-plan evaluator: prefetch lists
// A=[a,b,c], B=[b,c,d], k=60, limit 4. Expected order: b, c, a, d.
func TestFusionRRFMatchesSpecExample(t *testing.T) {
	a, b, c, d := segment.NumPointID(1), segment.NumPointID(2), segment.NumPointID(3), segment.NumPointID(4)
	perQueryMerged := [][]ScoredPoint{
		{{ID: a, Score: 3}, {ID: b, Score: 2}, {ID: c, Score: 1}}, // A
		{{ID: b, Score: 3}, {ID: c, Score: 2}, {ID: d, Score: 1}}, // B
	}
	node := &MergeNode{
		Kind:  MergeFusionRRF,
		Limit: 4,
		Children: []*MergeNode{
			{Kind: MergeLeaf, BatchIndex: 0, Limit: 3},
			{Kind: MergeLeaf, BatchIndex: 1, Limit: 3},
		},
	}
	out := evaluate(node, perQueryMerged)
	want := []segment.PointID{b, c, a, d}
	if len(out) != len(want) {
		t.Fatalf("expected %d results, got %d: %+v", len(want), len(out), out)
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("position %d: expected %+v, got %+v (full: %+v)", i, id, out[i].ID, out)
		}
	}
}

func TestRescoreReordersCandidatesByNewVector(t *testing.T) {
	near := segment.NumPointID(1)
	far := segment.NumPointID(2)
	perQueryMerged := [][]ScoredPoint{
		{
			{ID: far, Score: 1, Vectors: map[string][]float32{"v": {10, 10}}},
			{ID: near, Score: 2, Vectors: map[string][]float32{"v": {1, 1}}},
		},
	}
	node := &MergeNode{
		Kind:              MergeRescore,
		RescoreVectorName: "v",
		RescoreVector:     []float32{0, 0},
		RescoreMetric:     vstorage.Euclid,
		Limit:             2,
		Children:          []*MergeNode{{Kind: MergeLeaf, BatchIndex: 0, Limit: 2}},
	}
	out := evaluate(node, perQueryMerged)
	if len(out) != 2 || out[0].ID != near {
		t.Fatalf("expected the rescored nearest point first, got %+v", out)
	}
}
