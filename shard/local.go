// Package shard implements LocalShard, the per-shard write path that
// ties a segment.Holder, a wal.Log, and an optimizer.Loop together, plus
// the replica-set and remote-shard abstractions shard transfer drives
// (spec.md §4.3, §4.4).
package shard

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/cmn/cos"
	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/optimizer"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/vstorage"
	"github.com/vecstore/vecstore/wal"
)

// LocalShard owns one SegmentHolder, its WAL, and the optimizer loop that
// compacts it in the background — the unit spec.md §2 describes as
// "Collection → route via HashRing → target replica set → LocalShard →
// WAL append → apply to segments → fire optimizer triggers."
type LocalShard struct {
	ID string

	mu       sync.RWMutex
	holder   *segment.Holder
	log      *wal.Log
	fields   []segment.VectorFieldConfig
	pidx     *payload.Index
	rng      *rand.Rand
	activeID string // segment new upserts land in

	loop *optimizer.Loop

	fwdMu      sync.Mutex
	forwarders map[int]func(op wal.Op, payloadBytes []byte)
	nextFwdID  int
}

// Open opens (or creates) a shard's WAL and its first appendable segment.
func Open(id, walPath string, fields []segment.VectorFieldConfig, pidx *payload.Index) (*LocalShard, error) {
	log, err := wal.Open(walPath)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(1))
	holder := segment.NewHolder()
	activeID := id + "-" + cos.GenShortID()
	seg, err := segment.NewAppendable(activeID, rng, fields, pidx)
	if err != nil {
		log.Close()
		return nil, err
	}
	holder.Add(activeID, seg)
	s := &LocalShard{
		ID:       id,
		holder:   holder,
		log:      log,
		fields:   fields,
		pidx:     pidx,
		rng:      rng,
		activeID: activeID,
	}

	if err := log.Replay(0, func(r wal.Record) error { return s.apply(r.Op, r.Payload) }); err != nil {
		return nil, cmn.NewServiceError(err, "shard %s: replay wal on open", id)
	}
	return s, nil
}

// StartOptimizer wires and runs a background optimizer.Loop over this
// shard's holder until ctx is cancelled (spec.md §4.2's background pass,
// triggered as a side effect of the write path per spec.md §2).
func (s *LocalShard) StartOptimizer(ctx context.Context, th optimizer.Thresholds, mmapDir, payloadDir string, interval time.Duration) {
	s.loop = optimizer.NewLoop(s.holder, th, mmapDir, payloadDir, func() string { return s.ID + "-" + cos.GenShortID() }, interval)
	go s.loop.Run(ctx)
}

// Holder exposes the read path (search, fan-out) to callers above this
// shard (ShardReplicaSet, query merge).
func (s *LocalShard) Holder() *segment.Holder { return s.holder }

// Search fans a query out across every segment this shard holds.
func (s *LocalShard) Search(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, metric vstorage.Metric, top, ef int) ([]segment.SearchResult, error) {
	return s.holder.SearchAll(ctx, vectorName, query, filter, metric, top, ef)
}

// Apply appends op to the WAL, then applies it to the in-memory segments
// — the write path spec.md §2 names, in that order: a crash between the
// two steps replays cleanly on reopen because every segment mutation is
// idempotent under its own version check.
func (s *LocalShard) Apply(op wal.Op, payloadBytes []byte) error {
	if _, err := s.log.Append(op, payloadBytes); err != nil {
		return err
	}
	if err := s.apply(op, payloadBytes); err != nil {
		return err
	}
	s.fwdMu.Lock()
	fwds := make([]func(wal.Op, []byte), 0, len(s.forwarders))
	for _, fn := range s.forwarders {
		fwds = append(fwds, fn)
	}
	s.fwdMu.Unlock()
	for _, fn := range fwds {
		fn(op, payloadBytes)
	}
	return nil
}

// AddForwarder registers fn to be called with every successfully-applied
// write (spec.md §4.4 StreamRecords step (b): "Proxy the local shard on
// from: new writes are forwarded to to as they arrive"). The returned
// func removes it, un-proxying the source once a transfer finishes.
func (s *LocalShard) AddForwarder(fn func(op wal.Op, payloadBytes []byte)) (remove func()) {
	s.fwdMu.Lock()
	id := s.nextFwdID
	s.nextFwdID++
	if s.forwarders == nil {
		s.forwarders = make(map[int]func(wal.Op, []byte))
	}
	s.forwarders[id] = fn
	s.fwdMu.Unlock()
	return func() {
		s.fwdMu.Lock()
		delete(s.forwarders, id)
		s.fwdMu.Unlock()
	}
}

// PayloadSchema exposes this shard's payload index field declarations so
// a transfer can copy them to a target shard (spec.md §4.4 step (c)).
func (s *LocalShard) PayloadSchema() payload.Schema {
	if s.pidx == nil {
		return nil
	}
	return s.pidx.Schema
}

// FilterContext turns a payload.Filter into the hnsw.FilterFunc Search
// consumes, using this shard's own payload index (spec.md §4.5: the
// coordinator plans searches, but filter evaluation stays shard-local).
func (s *LocalShard) FilterContext(filter payload.Filter) hnsw.FilterFunc {
	if s.pidx == nil {
		return nil
	}
	return hnsw.FilterFunc(s.pidx.FilterContext(filter))
}

// Fetch hydrates id's vectors and payload for result post-processing
// (with-vector / with-payload), scanning every segment this shard holds.
func (s *LocalShard) Fetch(id segment.PointID) (vecs map[string][]float32, p payload.Point, found bool) {
	for _, sr := range s.holder.All() {
		seg, ok := sr.(*segment.Segment)
		if !ok {
			continue
		}
		if vecs, p, found = seg.Get(id); found {
			return vecs, p, true
		}
	}
	return nil, nil, false
}
