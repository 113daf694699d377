package collection

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vecstore/vecstore/hashring"
	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/query"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/vstorage"
	"github.com/vecstore/vecstore/wal"
)

func testFields() []segment.VectorFieldConfig {
	return []segment.VectorFieldConfig{{Name: "v", Dim: 2, Metric: vstorage.Euclid, HNSW: hnsw.Params{M: 6}}}
}

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	c := New("test", "peer-a", t.TempDir())
	c.cfg = DefaultConfig(testFields())
	return c
}

func upsert(t *testing.T, c *Collection, shardKey string, id segment.PointID, v []float32, p payload.Point) {
	t.Helper()
	body, err := shard.EncodeUpdate(shard.UpsertRequest{ID: id, Version: 1, Vectors: map[string][]float32{"v": v}, Payload: p})
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}
	if err := c.Write(shardKey, id, wal.UpsertPoints, body); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestCreateShardRegistersActiveLocalReplica(t *testing.T) {
	c := newTestCollection(t)
	rs, err := c.CreateShard(context.Background(), "", "shard0")
	if err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	c.holder.SeedRing("", []string{"shard0"})

	if rs.Local() == nil {
		t.Fatal("expected a local shard")
	}
	if st, ok := rs.State("peer-a"); !ok || st != shard.Active {
		t.Fatalf("expected peer-a active, got %v %v", st, ok)
	}
}

func TestWriteRoutesToShardAndQueryFindsIt(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.CreateShard(context.Background(), "", "shard0"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	c.holder.SeedRing("", []string{"shard0"})

	upsert(t, c, "", segment.NumPointID(1), []float32{1, 1}, payload.Point{"color": "red"})

	req := query.ShardQueryRequest{
		Query: &query.ScoringQuery{VectorName: "v", Vector: []float32{1, 1}, Metric: vstorage.Euclid},
		Limit: 5, Ef: 32,
	}
	results, err := c.Query(context.Background(), "", req)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != segment.NumPointID(1) {
		t.Fatalf("expected point 1 back, got %+v", results)
	}
}

func TestStrictModeRejectsOverLimitQuery(t *testing.T) {
	c := newTestCollection(t)
	c.cfg.Strict.MaxQueryLimit = 2
	if _, err := c.CreateShard(context.Background(), "", "shard0"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	c.holder.SeedRing("", []string{"shard0"})

	req := query.ShardQueryRequest{
		Query: &query.ScoringQuery{VectorName: "v", Vector: []float32{1, 1}, Metric: vstorage.Euclid},
		Limit: 10, Ef: 32,
	}
	if _, err := c.Query(context.Background(), "", req); err == nil {
		t.Fatal("expected strict mode to reject a query exceeding max_query_limit")
	}
}

func TestApplyMetaOpIsIdempotentUnderSameTermIndex(t *testing.T) {
	c := newTestCollection(t)
	op := CollectionMetaOp{Kind: SetReplicaState, ShardID: "shard0", Peer: "peer-b", ReplicaState: shard.Active}

	if _, err := c.CreateShard(context.Background(), "", "shard0"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}

	if err := c.ApplyMetaOp(1, 1, op); err != nil {
		t.Fatalf("ApplyMetaOp: %v", err)
	}
	rs, _ := c.holder.Shard("shard0")
	if rs.CountReplicas() != 2 {
		t.Fatalf("expected 2 replicas after first apply, got %d", rs.CountReplicas())
	}

	// Redelivering the same (term, index) — as consensus may — must be a
	// no-op, not a duplicate apply.
	secondOp := CollectionMetaOp{Kind: RemoveReplica, ShardID: "shard0", Peer: "peer-b"}
	if err := c.ApplyMetaOp(1, 1, secondOp); err != nil {
		t.Fatalf("ApplyMetaOp (stale key): %v", err)
	}
	if rs.CountReplicas() != 2 {
		t.Fatalf("expected stale (term,index) redelivery to be a no-op, got %d replicas", rs.CountReplicas())
	}

	if err := c.ApplyMetaOp(1, 2, secondOp); err != nil {
		t.Fatalf("ApplyMetaOp (fresh key): %v", err)
	}
	if rs.CountReplicas() != 1 {
		t.Fatalf("expected peer-b removed after a fresh (term,index), got %d replicas", rs.CountReplicas())
	}
}

func TestReshardingLifecycleCommitsToNewRing(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.CreateShard(context.Background(), "tenant", "shard0"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	c.holder.SeedRing("tenant", []string{"shard0"})
	if _, err := c.CreateShard(context.Background(), "tenant", "shard1"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}

	key := hashring.ReshardKey{Direction: hashring.Up, PeerID: "peer-a", ShardID: "shard1", ShardKey: "tenant"}
	if err := c.ApplyMetaOp(1, 1, CollectionMetaOp{Kind: StartResharding, ShardKey: "tenant", Reshard: &key}); err != nil {
		t.Fatalf("StartResharding: %v", err)
	}
	if _, ok := c.holder.ReshardState("tenant"); !ok {
		t.Fatal("expected an in-flight reshard state")
	}

	if err := c.ApplyMetaOp(1, 2, CollectionMetaOp{Kind: CommitReadHashring, ShardKey: "tenant"}); err != nil {
		t.Fatalf("CommitReadHashring: %v", err)
	}
	if err := c.ApplyMetaOp(1, 3, CollectionMetaOp{Kind: CommitWriteHashring, ShardKey: "tenant"}); err != nil {
		t.Fatalf("CommitWriteHashring: %v", err)
	}
	if err := c.ApplyMetaOp(1, 4, CollectionMetaOp{Kind: FinishResharding, ShardKey: "tenant"}); err != nil {
		t.Fatalf("FinishResharding: %v", err)
	}
	if _, ok := c.holder.ReshardState("tenant"); ok {
		t.Fatal("expected the reshard state to be cleared after finish")
	}

	ids, err := c.holder.SelectShards("tenant")
	if err != nil {
		t.Fatalf("SelectShards: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 shards on the steady-state ring after finish, got %v", ids)
	}
}

func TestAbortResharding(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.CreateShard(context.Background(), "tenant", "shard0"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	c.holder.SeedRing("tenant", []string{"shard0"})

	key := hashring.ReshardKey{Direction: hashring.Up, PeerID: "peer-a", ShardID: "shard1", ShardKey: "tenant"}
	if err := c.ApplyMetaOp(1, 1, CollectionMetaOp{Kind: StartResharding, ShardKey: "tenant", Reshard: &key}); err != nil {
		t.Fatalf("StartResharding: %v", err)
	}
	if err := c.ApplyMetaOp(1, 2, CollectionMetaOp{Kind: AbortResharding, ShardKey: "tenant"}); err != nil {
		t.Fatalf("AbortResharding: %v", err)
	}
	ids, err := c.holder.SelectShards("tenant")
	if err != nil {
		t.Fatalf("SelectShards: %v", err)
	}
	if len(ids) != 1 || ids[0] != "shard0" {
		t.Fatalf("expected abort to revert to the single original shard, got %v", ids)
	}

	// A second abort must fail: no reshard is in flight any more, so it's
	// a NotFound.
	if err := c.ApplyMetaOp(1, 3, CollectionMetaOp{Kind: AbortResharding, ShardKey: "tenant"}); err == nil {
		t.Fatal("expected a second abort with no in-flight reshard to fail")
	}
}

func TestTransferStreamsPointsAndFinishesActive(t *testing.T) {
	c := New("test", "peer-a", t.TempDir())
	c.cfg = DefaultConfig(testFields())
	if _, err := c.CreateShard(context.Background(), "", "shard0"); err != nil {
		t.Fatalf("CreateShard: %v", err)
	}
	c.holder.SeedRing("", []string{"shard0"})
	upsert(t, c, "", segment.NumPointID(1), []float32{2, 2}, payload.Point{"k": "v"})

	targetShard, err := shard.Open("shard0", filepath.Join(t.TempDir(), "target.wal"), testFields(), payload.NewIndex(payload.NewMemColumnStore()))
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	c.RegisterPeer("peer-b", &shard.LocalRemoteShard{Peer: "peer-b", Shard: targetShard})

	op := CollectionMetaOp{
		Kind:    TransferShard,
		ShardID: "shard0",
		Transfer: &TransferShardOp{
			Action: TransferStart, From: "peer-a", To: "peer-b", Sync: true,
		},
	}
	if err := c.ApplyMetaOp(1, 1, op); err != nil {
		t.Fatalf("TransferShard start: %v", err)
	}

	// The transfer streams in the background; poll briefly for its one
	// point to land before finishing it the way a consensus-committed
	// TransferShard{Finish} would.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, found := targetShard.Fetch(segment.NumPointID(1)); found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the transfer to stream point 1")
		}
		time.Sleep(5 * time.Millisecond)
	}

	finishOp := CollectionMetaOp{
		Kind:    TransferShard,
		ShardID: "shard0",
		Transfer: &TransferShardOp{
			Action: TransferFinish, From: "peer-a", To: "peer-b", Sync: true,
		},
	}
	if err := c.ApplyMetaOp(1, 2, finishOp); err != nil {
		t.Fatalf("TransferShard finish: %v", err)
	}
	rs, _ := c.holder.Shard("shard0")
	if st, ok := rs.State("peer-b"); !ok || st != shard.Active {
		t.Fatalf("expected peer-b active after finish, got %v %v", st, ok)
	}
	if _, ok := rs.State("peer-a"); !ok {
		t.Fatal("expected peer-a (sync=true) to remain a replica")
	}
}
