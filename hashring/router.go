package hashring

// Router is either Single{ring} or Resharding{old, new} (spec.md §4.3
// HashRingRouter). While resharding, both rings exist; routing for reads
// and writes is resolved against whichever ring the current ReshardState
// stage says they should follow.
type Router struct {
	single *Ring

	old *Ring
	new *Ring
}

// NewSingleRouter wraps one ring — the steady state outside any reshard.
func NewSingleRouter(ring *Ring) *Router { return &Router{single: ring} }

// NewReshardingRouter wraps an (old, new) ring pair, entered when a
// resharding operation starts (spec.md §4.3 table).
func NewReshardingRouter(old, newRing *Ring) *Router { return &Router{old: old, new: newRing} }

func (r *Router) IsResharding() bool { return r.old != nil || r.new != nil }

// RouteRead resolves a read according to stage: MigratingPoints follows
// old, ReadHashRingCommitted and WriteHashRingCommitted follow new
// (spec.md §4.3 table, "Reads follow").
func (r *Router) RouteRead(shardKey, id string, stage Stage) (string, bool) {
	if !r.IsResharding() {
		return r.single.Route(shardKey, id)
	}
	if stage == MigratingPoints {
		return r.old.Route(shardKey, id)
	}
	return r.new.Route(shardKey, id)
}

// RouteWrite resolves a write according to stage: only
// WriteHashRingCommitted follows new; both earlier stages follow old
// (spec.md §4.3 table, "Writes follow").
func (r *Router) RouteWrite(shardKey, id string, stage Stage) (string, bool) {
	if !r.IsResharding() {
		return r.single.Route(shardKey, id)
	}
	if stage == WriteHashRingCommitted {
		return r.new.Route(shardKey, id)
	}
	return r.old.Route(shardKey, id)
}

// CommitWrite drops old, leaving a steady-state single router over new
// (spec.md §4.3: "WriteHashRingCommitted | — | yes | new | new").
func (r *Router) CommitWrite() *Router {
	return NewSingleRouter(r.new)
}

// SingleRing returns the steady-state ring a non-resharding Router wraps.
// ok is false while resharding (old/new, not single, is authoritative).
func (r *Router) SingleRing() (ring *Ring, ok bool) {
	return r.single, r.single != nil
}

// AllShardIDs is the ShardSelector primitive spec.md §2's query control
// flow needs ("Collection → select shards via ShardSelector"): every
// shard id either ring currently names, so a broad query run mid-reshard
// misses neither the shards draining out nor the ones filling in.
func (r *Router) AllShardIDs() []string {
	if !r.IsResharding() {
		return r.single.ShardIDs()
	}
	seen := make(map[string]bool)
	var out []string
	for _, ring := range []*Ring{r.old, r.new} {
		for _, id := range ring.ShardIDs() {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
