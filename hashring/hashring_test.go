package hashring

import "testing"

func TestRingRouteIsStableAndDeterministic(t *testing.T) {
	r := NewRing([]string{"s0", "s1", "s2"})
	first, ok := r.Route("key", "point-1")
	if !ok {
		t.Fatal("Route returned ok=false on non-empty ring")
	}
	second, _ := r.Route("key", "point-1")
	if first != second {
		t.Fatalf("Route is not deterministic: %q then %q", first, second)
	}
}

func TestRingDistributesAcrossShards(t *testing.T) {
	r := NewRing([]string{"s0", "s1", "s2"})
	counts := make(map[string]int)
	for i := 0; i < 300; i++ {
		id := string(rune('a' + i%26))
		shard, _ := r.Route("key", id+string(rune(i)))
		counts[shard]++
	}
	if len(counts) < 2 {
		t.Fatalf("expected points to spread across multiple shards, got %v", counts)
	}
}

func TestWithShardAddsWithoutDisturbingExistingRing(t *testing.T) {
	base := NewRing([]string{"s0", "s1"})
	grown := base.WithShard("s2")
	if len(grown.ShardIDs()) != 3 {
		t.Fatalf("grown ring has %d shards, want 3", len(grown.ShardIDs()))
	}
	if len(base.ShardIDs()) != 2 {
		t.Fatal("WithShard mutated the base ring")
	}
}

func TestWithoutShardRemovesAllItsVnodes(t *testing.T) {
	r := NewRing([]string{"s0", "s1", "s2"}).WithoutShard("s1")
	for _, id := range r.ShardIDs() {
		if id == "s1" {
			t.Fatal("s1 still present after WithoutShard")
		}
	}
}

func TestReshardStateMachineGuards(t *testing.T) {
	ring := NewRing([]string{"s0", "s1"})
	key := ReshardKey{Direction: Up, ShardID: "s2", ShardKey: "k"}
	state, err := StartResharding(key, []string{"s0", "s1"}, false, ring)
	if err != nil {
		t.Fatalf("StartResharding: %v", err)
	}
	if state.Stage != MigratingPoints {
		t.Fatalf("initial stage = %d, want MigratingPoints", state.Stage)
	}
	if err := state.CommitWriteHashring(); err == nil {
		t.Fatal("CommitWriteHashring should be rejected before CommitReadHashring")
	}
	if err := state.CommitReadHashring(); err != nil {
		t.Fatalf("CommitReadHashring: %v", err)
	}
	if _, err := state.AbortResharding(); err == nil {
		t.Fatal("AbortResharding should be rejected at or after ReadHashRingCommitted")
	}
	if err := state.CommitWriteHashring(); err != nil {
		t.Fatalf("CommitWriteHashring: %v", err)
	}
	router, err := state.FinishResharding()
	if err != nil {
		t.Fatalf("FinishResharding: %v", err)
	}
	if router.IsResharding() {
		t.Fatal("router returned by FinishResharding should be a steady-state single router")
	}
}

func TestStartReshardingRejectsConcurrentOperation(t *testing.T) {
	ring := NewRing([]string{"s0"})
	key := ReshardKey{Direction: Up, ShardID: "s1", ShardKey: "k"}
	if _, err := StartResharding(key, []string{"s0"}, true, ring); err == nil {
		t.Fatal("expected rejection when another reshard is already in progress")
	}
}

func TestStartReshardingDownRejectsDrainingLastShard(t *testing.T) {
	ring := NewRing([]string{"s0"})
	key := ReshardKey{Direction: Down, ShardID: "s0", ShardKey: "k"}
	if _, err := StartResharding(key, []string{"s0"}, false, ring); err == nil {
		t.Fatal("expected rejection when removing the shard would leave zero shards")
	}
}

func TestAssignsHereMatchesRoute(t *testing.T) {
	ring := NewRing([]string{"s0", "s1", "s2"})
	shard, _ := ring.Route("k", "point-42")
	pred := AssignsHere(ring, "k", shard)
	if !pred("point-42") {
		t.Fatal("AssignsHere should accept a point routed to this shard")
	}
	other := "s0"
	if shard == other {
		other = "s1"
	}
	predOther := AssignsHere(ring, "k", other)
	if predOther("point-42") {
		t.Fatal("AssignsHere should reject a point routed to a different shard")
	}
}
