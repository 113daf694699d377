package shard

import (
	"context"
	"sync"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/wal"
)

// ReplicaState is a replica's standing within a ShardReplicaSet (spec.md
// §4.4: "add remote as an Active replica", "switch the remote to partial
// state", "prefer non-Active replicas").
type ReplicaState int

const (
	Active ReplicaState = iota
	Partial
	Recovering
)

func (s ReplicaState) String() string {
	switch s {
	case Active:
		return "active"
	case Partial:
		return "partial"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// RemoteShard is the thin RPC-facing seam a transfer streams records
// through (spec.md §4.4); a real build backs this with a transport
// client, tests back it with an in-process fake.
type RemoteShard interface {
	PeerID() string
	// Init creates the empty target shard a StreamRecords transfer's
	// step (a) requires before anything is forwarded to it.
	Init(ctx context.Context) error
	Upsert(ctx context.Context, id segment.PointID, version uint64, vecs map[string][]float32, p payload.Point) error
	Delete(ctx context.Context, id segment.PointID) error
	SetPayload(ctx context.Context, id segment.PointID, p payload.Point) error
	DeletePayload(ctx context.Context, id segment.PointID, keys []string) error
	ClearPayload(ctx context.Context, id segment.PointID) error
	CreateFieldIndex(ctx context.Context, field string, kind payload.FieldKind) error
	DeleteFieldIndex(ctx context.Context, field string) error
}

// LocalRemoteShard adapts a same-process LocalShard to RemoteShard, used
// in tests and in a single-node deployment where "the remote" is local.
type LocalRemoteShard struct {
	Peer  string
	Shard *LocalShard
}

func (l *LocalRemoteShard) PeerID() string { return l.Peer }

// Init is a no-op: in a single-node deployment (or a test) the target
// LocalShard already exists by the time it's wrapped.
func (l *LocalRemoteShard) Init(context.Context) error { return nil }

func (l *LocalRemoteShard) CreateFieldIndex(_ context.Context, field string, kind payload.FieldKind) error {
	body, err := EncodeUpdate(CreateFieldIndexRequest{Field: field, Kind: kind})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.CreateFieldIndex, body)
}

func (l *LocalRemoteShard) DeleteFieldIndex(_ context.Context, field string) error {
	body, err := EncodeUpdate(DeleteFieldIndexRequest{Field: field})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.DeleteFieldIndex, body)
}

func (l *LocalRemoteShard) SetPayload(_ context.Context, id segment.PointID, p payload.Point) error {
	body, err := EncodeUpdate(SetPayloadRequest{ID: id, Payload: p})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.SetPayload, body)
}

func (l *LocalRemoteShard) DeletePayload(_ context.Context, id segment.PointID, keys []string) error {
	body, err := EncodeUpdate(DeletePayloadRequest{ID: id, Keys: keys})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.DeletePayload, body)
}

func (l *LocalRemoteShard) ClearPayload(_ context.Context, id segment.PointID) error {
	body, err := EncodeUpdate(ClearPayloadRequest{ID: id})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.ClearPayload, body)
}

func (l *LocalRemoteShard) Upsert(_ context.Context, id segment.PointID, version uint64, vecs map[string][]float32, p payload.Point) error {
	body, err := EncodeUpdate(UpsertRequest{ID: id, Version: version, Vectors: vecs, Payload: p})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.UpsertPoints, body)
}

func (l *LocalRemoteShard) Delete(_ context.Context, id segment.PointID) error {
	body, err := EncodeUpdate(DeleteRequest{ID: id})
	if err != nil {
		return err
	}
	return l.Shard.Apply(wal.DeletePoints, body)
}

// ShardReplicaSet is the set of peers holding one shard, each in a
// ReplicaState (spec.md §3 ShardTransfer's context: transfers mutate a
// shard's replica set).
type ShardReplicaSet struct {
	ShardID string

	mu       sync.RWMutex
	replicas map[string]ReplicaState
	local    *LocalShard // nil on a peer that holds no local copy
}

func NewShardReplicaSet(shardID string, local *LocalShard) *ShardReplicaSet {
	return &ShardReplicaSet{ShardID: shardID, replicas: make(map[string]ReplicaState), local: local}
}

func (rs *ShardReplicaSet) Local() *LocalShard { return rs.local }

// RequireLocal is the guard transfer and query-merge code calls before
// touching this peer's own copy of the shard.
func (rs *ShardReplicaSet) RequireLocal() (*LocalShard, error) {
	if rs.local == nil {
		return nil, errNoLocalShard
	}
	return rs.local, nil
}

func (rs *ShardReplicaSet) SetReplicaState(peer string, state ReplicaState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.replicas[peer] = state
}

func (rs *ShardReplicaSet) RemoveReplica(peer string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.replicas, peer)
}

func (rs *ShardReplicaSet) State(peer string) (ReplicaState, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	st, ok := rs.replicas[peer]
	return st, ok
}

// Peers returns every replica peer id currently tracked, in no
// particular order.
func (rs *ShardReplicaSet) Peers() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, 0, len(rs.replicas))
	for p := range rs.replicas {
		out = append(out, p)
	}
	return out
}

// CountReplicas is the "fewest replicas overall" tie-break input spec.md
// §4.4's peer-selection helpers need.
func (rs *ShardReplicaSet) CountReplicas() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.replicas)
}

// IsEmpty reports whether the replica set has no replicas left — the
// drop-the-shard condition in spec.md §4.3's abort (Up direction).
func (rs *ShardReplicaSet) IsEmpty() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.replicas) == 0
}

var errNoLocalShard = cmn.NewBadRequest("shard replica set has no local shard copy")
