package transfer

import (
	"context"
	"sync"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/snapshot"
	"github.com/vecstore/vecstore/wal"
)

// SnapshotRestorer is the narrower seam a SnapshotTransfer needs beyond
// RemoteShard: a peer capable of downloading and installing an archive
// (LocalRemoteShard implements it; a real transport-backed RemoteShard
// would issue the equivalent RPC).
type SnapshotRestorer interface {
	RestoreSnapshot(ctx context.Context, backend snapshot.Backend, archivePath string) error
}

// queuedOp is one write accumulated while the source shard is
// queue-proxied during a snapshot transfer (spec.md §4.4 Snapshot step
// (a)).
type queuedOp struct {
	op   wal.Op
	body []byte
}

// SnapshotTransfer implements spec.md §4.4's Snapshot method: queue-proxy
// the source, snapshot to disk, instruct the target to restore, wait for
// consensus, then cut the target over and replay the queue.
type SnapshotTransfer struct {
	*cancelable

	ShardID      string
	Collection   string
	FromPeer     string
	Replicas     *shard.ShardReplicaSet
	To           shard.RemoteShard
	Backend      snapshot.Backend
	SnapshotName string
	cfg          Config

	queueMu sync.Mutex
	queue   []queuedOp
}

func NewSnapshotTransfer(collection, shardID, fromPeer string, replicas *shard.ShardReplicaSet, to shard.RemoteShard, backend snapshot.Backend, snapshotName string, cfg Config) *SnapshotTransfer {
	return &SnapshotTransfer{
		cancelable:   newCancelable(),
		ShardID:      shardID,
		Collection:   collection,
		FromPeer:     fromPeer,
		Replicas:     replicas,
		To:           to,
		Backend:      backend,
		SnapshotName: snapshotName,
		cfg:          cfg,
	}
}

// Run executes the full Snapshot sequence. waitForConsensus blocks until
// the cluster has committed the transfer (spec.md §4.4 step (d): "Wait
// for cluster sync (consensus commit)") — a caller-supplied hook since
// this module has no consensus layer of its own.
func (t *SnapshotTransfer) Run(ctx context.Context, createdAt int64, waitForConsensus func(context.Context) error) error {
	err := t.run(ctx, createdAt, waitForConsensus)
	t.finish(err)
	return err
}

func (t *SnapshotTransfer) run(ctx context.Context, createdAt int64, waitForConsensus func(context.Context) error) error {
	restorer, ok := t.To.(SnapshotRestorer)
	if !ok {
		return cmn.NewBadRequest("transfer %s: target peer %s cannot restore snapshots", t.ShardID, t.To.PeerID())
	}

	local, err := t.Replicas.RequireLocal()
	if err != nil {
		return err
	}

	// (a) Queue-proxy the source: updates accumulate for later replay.
	unproxy := local.AddForwarder(func(op wal.Op, body []byte) {
		t.queueMu.Lock()
		t.queue = append(t.queue, queuedOp{op: op, body: body})
		t.queueMu.Unlock()
	})
	defer unproxy()

	if t.Cancelled() {
		return cmn.NewCancelled("transfer %s: cancelled before snapshot", t.ShardID)
	}

	// (b) Snapshot the shard to disk.
	desc, err := local.SnapshotDescriptor(t.SnapshotName, createdAt)
	if err != nil {
		return err
	}
	blob, err := snapshot.Encode(desc)
	if err != nil {
		return err
	}
	path := snapshot.ArchivePath(t.Collection, t.ShardID, t.SnapshotName)
	if err := t.retry(ctx, func() error { return t.Backend.Put(ctx, path, blob) }); err != nil {
		return err
	}

	// (c) Instruct `to` to download-and-restore.
	t.Replicas.SetReplicaState(t.To.PeerID(), shard.Recovering)
	if err := t.retry(ctx, func() error { return restorer.RestoreSnapshot(ctx, t.Backend, path) }); err != nil {
		return err
	}

	if t.Cancelled() {
		return cmn.NewCancelled("transfer %s: cancelled before consensus wait", t.ShardID)
	}

	// (d) Wait for cluster sync (consensus commit).
	if waitForConsensus != nil {
		if err := waitForConsensus(ctx); err != nil {
			return cmn.NewServiceError(err, "transfer %s: consensus commit failed", t.ShardID)
		}
	}

	// (e) Switch the remote to partial state, replay the queue, then
	// switch to Active, finally un-proxy the source.
	t.Replicas.SetReplicaState(t.To.PeerID(), shard.Partial)
	if err := t.replayQueue(ctx); err != nil {
		return err
	}
	t.Replicas.SetReplicaState(t.To.PeerID(), shard.Active)
	return nil
}

func (t *SnapshotTransfer) replayQueue(ctx context.Context) error {
	t.queueMu.Lock()
	pending := t.queue
	t.queue = nil
	t.queueMu.Unlock()

	for _, q := range pending {
		if t.Cancelled() {
			return cmn.NewCancelled("transfer %s: cancelled replaying queue", t.ShardID)
		}
		req, err := decodeForForward(q.op, q.body)
		if err != nil {
			return err
		}
		if err := t.retry(ctx, func() error { return applyForwarded(ctx, t.To, req) }); err != nil {
			return err
		}
	}
	return nil
}

func (t *SnapshotTransfer) retry(ctx context.Context, fn func() error) error {
	return retryWithBackoff(ctx, t.cancelable, t.cfg, t.ShardID, fn)
}
