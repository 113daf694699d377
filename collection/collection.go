package collection

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/query"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/stats"
	"github.com/vecstore/vecstore/transfer"
	"github.com/vecstore/vecstore/wal"
)

// Collection is the composition root spec.md §2 names: it owns a
// ShardHolder, a configuration snapshot, and the consensus-applied
// meta-op log; it implements both control-flow paragraphs spec.md §2
// describes:
//
//	query:  Collection → select shards via ShardSelector → concurrent
//	        shard queries → merge by score (k-way) → dedup → take limit.
//	write:  Collection → route via HashRing → target replica set →
//	        LocalShard → WAL append → apply to segments → fire optimizer
//	        triggers.
type Collection struct {
	Name    string
	LocalID string // this peer's id, for registering itself as a replica

	mu          sync.Mutex
	cfg         Config
	holder      *ShardHolder
	aliases     map[string]bool
	deleted     bool
	lastApplied appliedKey

	walDir     string
	mmapDir    string
	payloadDir string

	peers     map[string]shard.RemoteShard
	conflicts *transfer.ConflictTracker
	running   map[string]*runningTransfer // shardID -> in-flight StreamTransfer
}

type runningTransfer struct {
	t       *transfer.StreamTransfer
	release func()
	cancel  context.CancelFunc
}

// New creates an empty Collection over dataDir, ready to take
// CreateCollection as its first meta-op.
func New(name, localID, dataDir string) *Collection {
	return &Collection{
		Name:       name,
		LocalID:    localID,
		holder:     NewShardHolder(),
		walDir:     filepath.Join(dataDir, "wal"),
		mmapDir:    filepath.Join(dataDir, "mmap"),
		payloadDir: filepath.Join(dataDir, "payload"),
		peers:      make(map[string]shard.RemoteShard),
		conflicts:  transfer.NewConflictTracker(),
		running:    make(map[string]*runningTransfer),
	}
}

// RegisterPeer wires a RemoteShard stub this collection can transfer to
// or accept forwarded writes from (spec.md §1 treats the RPC transport
// itself as an external collaborator; this is the seam it plugs into).
func (c *Collection) RegisterPeer(peerID string, rs shard.RemoteShard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[peerID] = rs
}

// CreateShard opens a fresh LocalShard for shardID under shardKey's ring,
// starts its background optimizer loop, and registers it with
// c.LocalID as its first Active replica. Callers use it for a collection's
// initial shards and for a resharding Up-direction's new shard;
// ApplyMetaOp itself never calls it.
func (c *Collection) CreateShard(ctx context.Context, shardKey, shardID string) (*shard.ShardReplicaSet, error) {
	var pidx *payload.Index
	if c.cfg.VectorFields != nil {
		pidx = payload.NewIndex(payload.NewMemColumnStore())
	}
	walPath := filepath.Join(c.walDir, shardID+".wal")
	local, err := shard.Open(shardID, walPath, c.cfg.VectorFields, pidx)
	if err != nil {
		return nil, cmn.NewServiceError(err, "collection %s: open shard %s", c.Name, shardID)
	}
	flushInterval := time.Duration(c.cfg.FlushIntervalSec) * time.Second
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	local.StartOptimizer(ctx, c.cfg.thresholds(), c.mmapDir, c.payloadDir, flushInterval)

	rs := shard.NewShardReplicaSet(shardID, local)
	rs.SetReplicaState(c.LocalID, shard.Active)
	c.holder.AddShard(shardKey, shardID, rs)
	stats.ShardCreated(c.Name)
	return rs, nil
}

// SeedRing establishes shard_key's steady-state ring over shardIDs,
// exposed so a caller that has just created shard_number shards via
// CreateShard (CreateCollection's placement decision, left to the
// caller — see DESIGN.md) can put them on the ring in one step.
func (c *Collection) SeedRing(shardKey string, shardIDs []string) {
	c.holder.SeedRing(shardKey, shardIDs)
}

// pointRoutingKey turns a PointID into the string RouteWrite/RouteRead
// hash (spec.md §4.3 routes "(shard_key, id)"; ids are either a UUID or a
// u64 and need one stable string form to hash).
func pointRoutingKey(id segment.PointID) string {
	if id.IsUUID {
		return id.UUID.String()
	}
	return strconv.FormatUint(id.Num, 10)
}

// Write implements spec.md §2's write control flow: route via HashRing,
// reach the target replica set's LocalShard, append to its WAL, apply to
// segments. Optimizer triggers fire on their own schedule inside the
// background loop CreateShard started; no extra call is needed here.
func (c *Collection) Write(shardKey string, id segment.PointID, op wal.Op, body []byte) (err error) {
	defer func() { stats.ObserveWrite(c.Name, err) }()

	if c.deleted {
		return cmn.NewNotFound("collection %s: deleted", c.Name)
	}
	shardID, err := c.holder.RouteWrite(shardKey, pointRoutingKey(id))
	if err != nil {
		return err
	}
	rs, ok := c.holder.Shard(shardID)
	if !ok {
		return cmn.NewNotFound("collection %s: shard %q not found", c.Name, shardID)
	}
	local, err := rs.RequireLocal()
	if err != nil {
		return err
	}
	return local.Apply(op, body)
}

// Query implements spec.md §2's query control flow: select shards via
// ShardSelector, fan the planned batch out across them concurrently
// (query.Run's errgroup fan-out), merge by score, dedup, take limit.
// Strict-mode admission control runs first, against the payload schema of
// the first selected shard — shards in a single collection share one
// vector-field/payload-field declaration, so that schema stands in for
// all of them.
func (c *Collection) Query(ctx context.Context, shardKey string, req query.ShardQueryRequest) (_ []query.ScoredPoint, err error) {
	start := time.Now()
	defer func() { stats.ObserveQuery(c.Name, start, err) }()

	if c.deleted {
		return nil, cmn.NewNotFound("collection %s: deleted", c.Name)
	}
	shardIDs, err := c.holder.SelectShards(shardKey)
	if err != nil {
		return nil, err
	}
	if len(shardIDs) == 0 {
		return nil, cmn.NewNotFound("collection %s: shard_key %q has no shards", c.Name, shardKey)
	}

	shards := make(map[string]query.Shard, len(shardIDs))
	var schema payload.Schema
	for _, id := range shardIDs {
		rs, ok := c.holder.Shard(id)
		if !ok {
			continue
		}
		local, err := rs.RequireLocal()
		if err != nil {
			// No local copy on this peer: spec.md §1 scopes cross-peer RPC
			// dispatch out of this package, so a shard with no local
			// replica here is simply excluded from this peer's fan-out.
			continue
		}
		shards[id] = local
		if schema == nil {
			schema = local.PayloadSchema()
		}
	}
	if len(shards) == 0 {
		return nil, cmn.NewNotFound("collection %s: no locally-held shard for shard_key %q", c.Name, shardKey)
	}

	if err := ValidateQuery(c.cfg.Strict, req, schema); err != nil {
		return nil, err
	}

	planned, err := query.Plan(req)
	if err != nil {
		return nil, err
	}
	return query.Run(ctx, shards, planned)
}

func (c *Collection) startTransfer(shardID string, op TransferShardOp) error {
	rs, ok := c.holder.Shard(shardID)
	if !ok {
		return cmn.NewNotFound("collection %s: shard %q not found", c.Name, shardID)
	}
	to, ok := c.peers[op.To]
	if !ok {
		return cmn.NewNotFound("collection %s: unknown transfer target peer %q", c.Name, op.To)
	}
	release, ok := c.conflicts.Reserve(op.From, op.To)
	if !ok {
		return cmn.NewConflict("collection %s: transfer conflicts with an active transfer sharing a peer", c.Name)
	}
	if old, exists := c.running[shardID]; exists {
		old.cancel()
		old.release()
	}

	t := transfer.NewStreamTransfer(shardID, op.From, rs, to, op.Sync, transfer.DefaultConfig())
	runCtx, cancel := context.WithCancel(context.Background())
	c.running[shardID] = &runningTransfer{t: t, release: release, cancel: cancel}
	go func() {
		_ = t.Run(runCtx)
		c.mu.Lock()
		if cur, ok := c.running[shardID]; ok && cur.t == t {
			delete(c.running, shardID)
			release()
		}
		c.mu.Unlock()
	}()
	return nil
}

func (c *Collection) abortTransfer(shardID, to string) error {
	rt, ok := c.running[shardID]
	if !ok {
		return cmn.NewNotFound("collection %s: no active transfer for shard %q", c.Name, shardID)
	}
	if rt.t.To.PeerID() != to {
		return cmn.NewBadRequest("collection %s: shard %q's active transfer targets %q, not %q", c.Name, shardID, rt.t.To.PeerID(), to)
	}
	rt.t.Cancel()
	rt.cancel()
	return nil
}

// finishTransfer records TransferShard{Finish}'s consensus-committed
// outcome on every peer, including ones that didn't run the transfer
// themselves: the replica set converges to the same state everywhere
// (spec.md §8 "Transfer atomicity").
func (c *Collection) finishTransfer(shardID string, op TransferShardOp) error {
	rs, ok := c.holder.Shard(shardID)
	if !ok {
		return cmn.NewNotFound("collection %s: shard %q not found", c.Name, shardID)
	}
	rs.SetReplicaState(op.To, shard.Active)
	if !op.Sync {
		rs.RemoveReplica(op.From)
	}
	if rt, ok := c.running[shardID]; ok {
		delete(c.running, shardID)
		rt.release()
	}
	return nil
}
