package optimizer

import (
	"context"
	"math/rand"
	"time"

	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/stats"
)

// Loop periodically scans a segment.Holder and triggers whichever
// optimizer kind a segment is a candidate for, deduplicating in-flight
// work through a Registry (spec.md §4.2's background optimizer pass).
type Loop struct {
	holder   *segment.Holder
	registry *Registry
	th       Thresholds
	rng      *rand.Rand

	mmapDir      string
	payloadDir   string
	nextID       func() string
	tickInterval time.Duration
}

// NewLoop wires a Loop over holder, ticking every interval. nextID mints
// fresh segment ids for rebuild targets (collection-supplied, so ids stay
// unique across the whole collection rather than just this loop).
func NewLoop(holder *segment.Holder, th Thresholds, mmapDir, payloadDir string, nextID func() string, interval time.Duration) *Loop {
	return &Loop{
		holder:       holder,
		registry:     NewRegistry(),
		th:           th,
		rng:          rand.New(rand.NewSource(1)),
		mmapDir:      mmapDir,
		payloadDir:   payloadDir,
		nextID:       nextID,
		tickInterval: interval,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) infos() map[string]segment.Info {
	all := l.holder.All()
	out := make(map[string]segment.Info, len(all))
	for id, s := range all {
		base, ok := s.(*segment.Segment)
		if !ok {
			continue // mid-optimization proxy; skip this round
		}
		out[id] = base.Info()
	}
	return out
}

// tick runs one selection pass: at most one Vacuum, one Merge, and one
// Indexing task are triggered per call. Vacuum and Indexing are
// deduplicated per segment through the registry so a slow task isn't
// restarted on every tick; a Merge is keyed by a freshly minted id, so the
// registry does not deduplicate it, and while it runs its sources are
// proxies, which infos skips.
func (l *Loop) tick(ctx context.Context) {
	infos := l.infos()

	if id, ok := SelectVacuum(infos, l.th); ok && !l.registry.Running(Vacuum, id) {
		l.registry.Renew(ctx, NewVacuumTask(l.holder, id, l.rng))
		stats.OptimizerTaskStarted(Vacuum.String())
	}

	if ids := SelectMerge(infos, l.th); len(ids) >= 2 {
		mergedID := l.nextID()
		task := NewMergeTask(l.holder, ids, mergedID, l.rng)
		if !l.registry.Running(Merge, mergedID) {
			l.registry.Renew(ctx, task)
			stats.OptimizerTaskStarted(Merge.String())
		}
	}

	if id, ok := SelectIndexing(infos, l.th); ok && !l.registry.Running(Indexing, id) {
		l.registry.Renew(ctx, NewIndexingTask(l.holder, id, l.mmapDir, l.payloadDir, l.th))
		stats.OptimizerTaskStarted(Indexing.String())
	}
}
