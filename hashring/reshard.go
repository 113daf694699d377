package hashring

import "github.com/vecstore/vecstore/cmn"

// Direction is which way a shard_key's shard count is moving.
type Direction int

const (
	Up Direction = iota
	Down
)

// Stage is a ReshardState's strictly-increasing progress marker (spec.md
// §3 ReshardState, §4.3 table).
type Stage int

const (
	MigratingPoints Stage = iota
	ReadHashRingCommitted
	WriteHashRingCommitted
)

// ReshardKey uniquely identifies one resharding operation (spec.md §6).
type ReshardKey struct {
	Direction Direction
	PeerID    string
	ShardID   string
	ShardKey  string
}

// ReshardState drives one resharding operation's state machine. Abort is
// permitted only strictly before ReadHashRingCommitted — once reads have
// moved to the new ring, the only way out is forward (spec.md §4.3
// abort_resharding guard).
type ReshardState struct {
	Key   ReshardKey
	Stage Stage

	Router *Router
}

// StartResharding validates the guards spec.md §4.3 names and returns a
// fresh ReshardState at stage MigratingPoints. existingShardIDs is the
// shard_key's current shard set; anyInProgress reports whether another
// reshard is already running for this shard_key.
func StartResharding(key ReshardKey, existingShardIDs []string, anyInProgress bool, oldRing *Ring) (*ReshardState, error) {
	if anyInProgress {
		return nil, cmn.NewBadRequest("hashring: resharding already in progress for shard_key %q", key.ShardKey)
	}
	has := false
	for _, id := range existingShardIDs {
		if id == key.ShardID {
			has = true
			break
		}
	}
	switch key.Direction {
	case Up:
		if has {
			return nil, cmn.NewBadRequest("hashring: shard %q already exists, cannot grow into it", key.ShardID)
		}
	case Down:
		if !has {
			return nil, cmn.NewBadRequest("hashring: shard %q does not exist, cannot shrink it away", key.ShardID)
		}
		if len(existingShardIDs) <= 1 {
			return nil, cmn.NewBadRequest("hashring: removing %q would leave shard_key %q with zero shards", key.ShardID, key.ShardKey)
		}
	}

	var newRing *Ring
	if key.Direction == Up {
		newRing = oldRing.WithShard(key.ShardID)
	} else {
		newRing = oldRing.WithoutShard(key.ShardID)
	}
	return &ReshardState{
		Key:    key,
		Stage:  MigratingPoints,
		Router: NewReshardingRouter(oldRing, newRing),
	}, nil
}

// CommitReadHashring requires Stage == MigratingPoints (spec.md §4.3
// commit_read_hashring guard).
func (s *ReshardState) CommitReadHashring() error {
	if s.Stage != MigratingPoints {
		return cmn.NewBadRequest("hashring: commit_read_hashring requires stage MigratingPoints, got stage %d", s.Stage)
	}
	s.Stage = ReadHashRingCommitted
	return nil
}

// CommitWriteHashring requires Stage == ReadHashRingCommitted (spec.md
// §4.3 commit_write_hashring guard).
func (s *ReshardState) CommitWriteHashring() error {
	if s.Stage != ReadHashRingCommitted {
		return cmn.NewBadRequest("hashring: commit_write_hashring requires stage ReadHashRingCommitted, got stage %d", s.Stage)
	}
	s.Stage = WriteHashRingCommitted
	return nil
}

// FinishResharding collapses the router to a steady-state single ring
// over new, clearing the reshard state (spec.md §3 ReshardState
// lifecycle: "cleared on finish").
func (s *ReshardState) FinishResharding() (*Router, error) {
	if s.Stage != WriteHashRingCommitted {
		return nil, cmn.NewBadRequest("hashring: finish_resharding requires stage WriteHashRingCommitted, got stage %d", s.Stage)
	}
	return s.Router.CommitWrite(), nil
}

// AbortResharding is idempotent before ReadHashRingCommitted; rejected at
// or after that stage (spec.md §3 invariant: "abort forbidden after
// ReadHashRingCommitted").
//
// Up direction: revert the ring, dropping the newly-added shard. Down
// direction: revert to the old ring; the caller is responsible for then
// running the hash-ring filter (AssignsHere) against every local shard in
// this shard_key to purge points that no longer belong there, per spec.md
// §4.3 "Abort (Down direction)".
func (s *ReshardState) AbortResharding() (*Router, error) {
	if s.Stage >= ReadHashRingCommitted {
		return nil, cmn.NewBadRequest("hashring: abort_resharding rejected at stage %d (only forward progress is allowed past ReadHashRingCommitted)", s.Stage)
	}
	return NewSingleRouter(s.Router.old), nil
}

// AssignsHere builds the hash-ring filter predicate spec.md §4.3
// describes: true iff id routes to shardID on ring.
func AssignsHere(ring *Ring, shardKey, shardID string) func(id string) bool {
	return func(id string) bool {
		routed, ok := ring.Route(shardKey, id)
		return ok && routed == shardID
	}
}
