package collection

import (
	"sort"
	"sync"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/hashring"
	"github.com/vecstore/vecstore/shard"
)

// ShardHolder is spec.md §2's "A Collection owns a ShardHolder which owns
// many ShardReplicaSets": every shard this collection currently has,
// grouped by shard_key, plus the hashring state that routes points to
// them and tracks any resharding operation in flight per shard_key.
type ShardHolder struct {
	mu sync.RWMutex

	sets      map[string]*shard.ShardReplicaSet // shardID -> replica set
	shardKeys map[string]string                  // shardID -> owning shard_key

	rings    map[string]*hashring.Ring         // shard_key -> steady-state ring
	reshards map[string]*hashring.ReshardState // shard_key -> in-flight reshard, if any
}

func NewShardHolder() *ShardHolder {
	return &ShardHolder{
		sets:      make(map[string]*shard.ShardReplicaSet),
		shardKeys: make(map[string]string),
		rings:     make(map[string]*hashring.Ring),
		reshards:  make(map[string]*hashring.ReshardState),
	}
}

// SeedRing establishes shard_key's steady-state ring directly, for
// CreateCollection (spec.md §6) laying down its initial shard_number
// shards with no resharding involved.
func (h *ShardHolder) SeedRing(shardKey string, shardIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rings[shardKey] = hashring.NewRing(shardIDs)
}

// AddShard registers rs as shard_key's shardID entry. It does not touch
// the ring — SeedRing and the resharding methods below own ring
// membership, since a shard can exist (e.g. mid-migration, still
// Recovering) before or after the ring says it owns any points.
func (h *ShardHolder) AddShard(shardKey, shardID string, rs *shard.ShardReplicaSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets[shardID] = rs
	h.shardKeys[shardID] = shardKey
}

func (h *ShardHolder) RemoveShard(shardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sets, shardID)
	delete(h.shardKeys, shardID)
}

func (h *ShardHolder) Shard(shardID string) (*shard.ShardReplicaSet, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rs, ok := h.sets[shardID]
	return rs, ok
}

// ShardKeyOf reports which shard_key owns shardID.
func (h *ShardHolder) ShardKeyOf(shardID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	k, ok := h.shardKeys[shardID]
	return k, ok
}

func (h *ShardHolder) router(shardKey string) (*hashring.Router, error) {
	if rs, ok := h.reshards[shardKey]; ok {
		return rs.Router, nil
	}
	ring, ok := h.rings[shardKey]
	if !ok {
		return nil, cmn.NewNotFound("shard_key %q has no shards", shardKey)
	}
	return hashring.NewSingleRouter(ring), nil
}

func (h *ShardHolder) stage(shardKey string) hashring.Stage {
	if rs, ok := h.reshards[shardKey]; ok {
		return rs.Stage
	}
	return hashring.WriteHashRingCommitted
}

// RouteWrite resolves the shard id a write to (shardKey, id) belongs on
// right now, honoring any in-flight resharding stage (spec.md §2's write
// control flow: "Collection → route via HashRing").
func (h *ShardHolder) RouteWrite(shardKey, id string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	router, err := h.router(shardKey)
	if err != nil {
		return "", err
	}
	shardID, ok := router.RouteWrite(shardKey, id, h.stage(shardKey))
	if !ok {
		return "", cmn.NewNotFound("shard_key %q: empty ring, nothing to route to", shardKey)
	}
	return shardID, nil
}

// RouteRead resolves the shard id a point read for (shardKey, id) should
// go to.
func (h *ShardHolder) RouteRead(shardKey, id string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	router, err := h.router(shardKey)
	if err != nil {
		return "", err
	}
	shardID, ok := router.RouteRead(shardKey, id, h.stage(shardKey))
	if !ok {
		return "", cmn.NewNotFound("shard_key %q: empty ring, nothing to route to", shardKey)
	}
	return shardID, nil
}

// SelectShards is the ShardSelector spec.md §2's query control flow names
// ("Collection → select shards via ShardSelector → concurrent shard
// queries"): every shard id a broad, non-point-routed query (a vector
// search, a scroll) must fan out to for shardKey, sorted for determinism.
func (h *ShardHolder) SelectShards(shardKey string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	router, err := h.router(shardKey)
	if err != nil {
		return nil, err
	}
	ids := router.AllShardIDs()
	sort.Strings(ids)
	return ids, nil
}

// AllShardKeys returns every shard_key this holder currently tracks a
// ring for, sorted for determinism — the fan-out set for a collection-
// wide (no shard_key given) scroll or query.
func (h *ShardHolder) AllShardKeys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rings))
	for k := range h.rings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StartResharding begins a resharding operation for key.ShardKey (spec.md
// §4.3/§6 start_resharding), recording the resulting ReshardState so
// later CommitReadHashring/CommitWriteHashring/FinishResharding/
// AbortResharding calls for this shard_key resolve against it.
func (h *ShardHolder) StartResharding(key hashring.ReshardKey) (*hashring.ReshardState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ring, ok := h.rings[key.ShardKey]
	if !ok {
		ring = hashring.NewRing(nil)
	}
	_, inProgress := h.reshards[key.ShardKey]
	state, err := hashring.StartResharding(key, ring.ShardIDs(), inProgress, ring)
	if err != nil {
		return nil, err
	}
	h.reshards[key.ShardKey] = state
	return state, nil
}

func (h *ShardHolder) reshardState(shardKey string) (*hashring.ReshardState, error) {
	state, ok := h.reshards[shardKey]
	if !ok {
		return nil, cmn.NewNotFound("shard_key %q has no resharding operation in progress", shardKey)
	}
	return state, nil
}

func (h *ShardHolder) CommitReadHashring(shardKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, err := h.reshardState(shardKey)
	if err != nil {
		return err
	}
	return state.CommitReadHashring()
}

func (h *ShardHolder) CommitWriteHashring(shardKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, err := h.reshardState(shardKey)
	if err != nil {
		return err
	}
	return state.CommitWriteHashring()
}

// FinishResharding collapses shardKey's router back to a steady-state
// ring over the new shard set and clears its reshard state.
func (h *ShardHolder) FinishResharding(shardKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, err := h.reshardState(shardKey)
	if err != nil {
		return err
	}
	router, err := state.FinishResharding()
	if err != nil {
		return err
	}
	ring, _ := router.SingleRing()
	h.rings[shardKey] = ring
	delete(h.reshards, shardKey)
	return nil
}

// AbortResharding reverts shardKey to its pre-reshard ring and clears the
// reshard state. A Down-direction abort only reverts the ring: points the
// reverted ring no longer assigns to a surviving shard are not purged, and
// nothing in this module runs hashring.AssignsHere for that.
func (h *ShardHolder) AbortResharding(shardKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, err := h.reshardState(shardKey)
	if err != nil {
		return err
	}
	router, err := state.AbortResharding()
	if err != nil {
		return err
	}
	ring, _ := router.SingleRing()
	h.rings[shardKey] = ring
	delete(h.reshards, shardKey)
	return nil
}

// ReshardState reports the in-flight resharding operation for shardKey,
// if any.
func (h *ShardHolder) ReshardState(shardKey string) (*hashring.ReshardState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.reshards[shardKey]
	return state, ok
}
