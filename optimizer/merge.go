package optimizer

import (
	"context"
	"math/rand"

	"github.com/vecstore/vecstore/segment"
)

// MergeTask folds several small segments into one (spec.md §4.2 Merge),
// using the same proxy-rebuild-swap protocol as Vacuum, applied to every
// source segment at once.
type MergeTask struct {
	*stoppableTask

	holder     *segment.Holder
	segmentIDs []string
	mergedID   string
	rng        *rand.Rand
}

func NewMergeTask(holder *segment.Holder, segmentIDs []string, mergedID string, rng *rand.Rand) *MergeTask {
	return &MergeTask{stoppableTask: newStoppableTask(), holder: holder, segmentIDs: segmentIDs, mergedID: mergedID, rng: rng}
}

func (t *MergeTask) Kind() Kind        { return Merge }
func (t *MergeTask) SegmentID() string { return t.mergedID }

func (t *MergeTask) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *MergeTask) run(ctx context.Context) {
	var err error
	defer func() { t.finish(err) }()

	if len(t.segmentIDs) < 2 {
		return
	}
	bases := make([]*segment.Segment, 0, len(t.segmentIDs))
	proxies := make(map[string]*segment.ProxySegment, len(t.segmentIDs))
	writeLegs := make(map[string]*segment.Segment, len(t.segmentIDs))
	swapIn := make(map[string]segment.Searchable, len(t.segmentIDs)*2)

	for _, id := range t.segmentIDs {
		s, ok := t.holder.Get(id)
		base, ok2 := s.(*segment.Segment)
		if !ok || !ok2 {
			return
		}
		writeLegID := id + "-write"
		writeLeg := mustWriteLeg(writeLegID, t.rng, base)
		proxy := segment.NewProxySegment(base, writeLeg)
		bases = append(bases, base)
		proxies[id] = proxy
		writeLegs[writeLegID] = writeLeg
		swapIn[id] = proxy
	}
	t.holder.Swap(t.segmentIDs, swapIn)

	stopped := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return t.Stopped()
		}
	}
	schema := bases[0].PayloadSchema()
	merged, rebuildErr := rebuild(t.mergedID, t.rng, bases[0].FieldConfigs(), freshPayloadIndex(schema), bases, stopped)

	revertOrFinal := make(map[string]segment.Searchable, len(t.segmentIDs)*2)
	oldIDs := make([]string, 0, len(t.segmentIDs))
	for id, proxy := range proxies {
		oldIDs = append(oldIDs, id)
		if rebuildErr != nil {
			revertOrFinal[id] = proxy.Unwrap()
		}
	}
	for legID, leg := range writeLegs {
		revertOrFinal[legID] = leg
	}
	if rebuildErr != nil {
		t.holder.Swap(oldIDs, revertOrFinal)
		err = rebuildErr
		return
	}
	merged.MarkOptimized()
	revertOrFinal[t.mergedID] = merged
	t.holder.Swap(oldIDs, revertOrFinal)
}
