package transfer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/shard"
	"github.com/vecstore/vecstore/stats"
	"github.com/vecstore/vecstore/wal"
)

// pointRecord is one live point pulled out of a segment during a
// StreamRecords pass (spec.md §4.4 step (d): "Iterate points in id
// order").
type pointRecord struct {
	id      segment.PointID
	version uint64
	vecs    map[string][]float32
	payload payload.Point
}

func sortKey(id segment.PointID) string {
	if id.IsUUID {
		return "u:" + id.UUID.String()
	}
	return fmt.Sprintf("n:%020d", id.Num)
}

// collectSorted pulls every live point out of a LocalShard's segments, in
// ascending id order.
func collectSorted(local *shard.LocalShard) []pointRecord {
	var out []pointRecord
	for _, sr := range local.Holder().All() {
		seg, ok := sr.(*segment.Segment)
		if !ok {
			continue
		}
		_ = seg.Points(func(id segment.PointID, version uint64, vecs map[string][]float32, p payload.Point) error {
			out = append(out, pointRecord{id: id, version: version, vecs: vecs, payload: p})
			return nil
		})
	}
	sort.Slice(out, func(i, j int) bool { return sortKey(out[i].id) < sortKey(out[j].id) })
	return out
}

// StreamTransfer moves (or copies) a shard by proxying live writes and
// streaming its current contents in id-ordered batches (spec.md §4.4
// StreamRecords).
type StreamTransfer struct {
	*cancelable

	ShardID  string
	FromPeer string
	Replicas *shard.ShardReplicaSet
	To       shard.RemoteShard
	Sync     bool
	cfg      Config
}

func NewStreamTransfer(shardID, fromPeer string, replicas *shard.ShardReplicaSet, to shard.RemoteShard, sync bool, cfg Config) *StreamTransfer {
	return &StreamTransfer{
		cancelable: newCancelable(),
		ShardID:    shardID,
		FromPeer:   fromPeer,
		Replicas:   replicas,
		To:         to,
		Sync:       sync,
		cfg:        cfg,
	}
}

// Run executes the full StreamRecords sequence and blocks until it
// completes, fails, or is cancelled. It is safe to call Cancel
// concurrently; the cancellation flag is checked at every batch
// boundary, per spec.md §4.4.
func (t *StreamTransfer) Run(ctx context.Context) error {
	stats.TransferStarted(t.ShardID)
	defer stats.TransferFinished(t.ShardID)
	err := t.run(ctx)
	t.finish(err)
	return err
}

func (t *StreamTransfer) run(ctx context.Context) error {
	local, err := t.Replicas.RequireLocal()
	if err != nil {
		return err
	}

	// (a) Initiate an empty shard on `to`.
	if err := t.retry(ctx, func() error { return t.To.Init(ctx) }); err != nil {
		return err
	}

	// (b) Proxy the local shard: forward new writes as they arrive.
	unproxy := local.AddForwarder(func(op wal.Op, body []byte) {
		_ = t.forwardOp(ctx, op, body)
	})
	defer unproxy()

	// (c) Copy payload index definitions.
	for field, kind := range local.PayloadSchema() {
		if err := t.retry(ctx, func() error { return t.To.CreateFieldIndex(ctx, field, kind) }); err != nil {
			return err
		}
	}

	// (d) Iterate points in id order in batches, checking cancellation
	// at every batch boundary.
	records := collectSorted(local)
	for start := 0; start < len(records); start += t.cfg.BatchSize {
		if t.Cancelled() {
			return cmn.NewCancelled("transfer %s: cancelled mid-stream", t.ShardID)
		}
		end := start + t.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		if err := t.sendBatch(ctx, batch); err != nil {
			return err
		}
	}

	// (e) On completion: add remote as an Active replica; if sync=false
	// also remove the local replica.
	t.Replicas.SetReplicaState(t.To.PeerID(), shard.Active)
	if !t.Sync {
		t.Replicas.RemoveReplica(t.FromPeer)
	}
	return nil
}

func (t *StreamTransfer) sendBatch(ctx context.Context, batch []pointRecord) error {
	for _, rec := range batch {
		rec := rec
		if err := t.retry(ctx, func() error {
			return t.To.Upsert(ctx, rec.id, rec.version, rec.vecs, rec.payload)
		}); err != nil {
			return err
		}
	}
	stats.TransferPoints(t.ShardID, len(batch))
	return nil
}

func (t *StreamTransfer) forwardOp(ctx context.Context, op wal.Op, body []byte) error {
	req, err := decodeForForward(op, body)
	if err != nil {
		return err
	}
	return t.retry(ctx, func() error { return applyForwarded(ctx, t.To, req) })
}

// retry runs fn, retrying with exponential backoff up to cfg.MaxRetries
// on failure, and aborts early with Cancelled if the flag fires between
// attempts (spec.md §4.4: "Retry on failure with exponential backoff up
// to a bounded retry count; report Cancelled if the flag fires").
func (t *StreamTransfer) retry(ctx context.Context, fn func() error) error {
	return retryWithBackoff(ctx, t.cancelable, t.cfg, t.ShardID, fn)
}

func retryWithBackoff(ctx context.Context, c *cancelable, cfg Config, shardID string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if c.Cancelled() {
			return cmn.NewCancelled("transfer %s: cancelled during retry", shardID)
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		stats.TransferRetried(shardID)
		select {
		case <-ctx.Done():
			return cmn.NewCancelled("transfer %s: context done during retry", shardID)
		case <-time.After(cfg.backoff(attempt)):
		}
	}
	return cmn.NewServiceError(lastErr, "transfer %s: exhausted %d retries", shardID, cfg.MaxRetries)
}
