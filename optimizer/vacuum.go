package optimizer

import (
	"context"
	"math/rand"

	"github.com/vecstore/vecstore/segment"
)

// VacuumTask compacts tombstoned points out of one segment (spec.md
// §4.2 Vacuum), following the generic protocol: swap a ProxySegment over
// the target, rebuild the replacement from its live points in the
// background, then swap {S', W} in to replace {Proxy(S, W)}.
type VacuumTask struct {
	*stoppableTask

	holder    *segment.Holder
	segmentID string
	rng       *rand.Rand
}

func NewVacuumTask(holder *segment.Holder, segmentID string, rng *rand.Rand) *VacuumTask {
	return &VacuumTask{stoppableTask: newStoppableTask(), holder: holder, segmentID: segmentID, rng: rng}
}

func (t *VacuumTask) Kind() Kind        { return Vacuum }
func (t *VacuumTask) SegmentID() string { return t.segmentID }

func (t *VacuumTask) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *VacuumTask) run(ctx context.Context) {
	var err error
	defer func() { t.finish(err) }()

	s, ok := t.holder.Get(t.segmentID)
	base, ok2 := s.(*segment.Segment)
	if !ok || !ok2 {
		return
	}
	writeLegID := t.segmentID + "-write"
	writeLeg := mustWriteLeg(writeLegID, t.rng, base)
	proxy := segment.NewProxySegment(base, writeLeg)
	t.holder.Swap([]string{t.segmentID}, map[string]segment.Searchable{t.segmentID: proxy})

	stopped := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return t.Stopped()
		}
	}
	pidx := freshPayloadIndex(base.PayloadSchema())
	fresh, rebuildErr := rebuild(t.segmentID+"-vacuumed", t.rng, base.FieldConfigs(), pidx, []*segment.Segment{base}, stopped)
	if rebuildErr != nil {
		// revert: unwrap the proxy back to the original segment, retaining
		// whatever the write leg absorbed meanwhile as a new appendable
		// segment (spec.md §4.2: "the ProxySegment is unwrapped back to S,
		// and W is ... retained as a new appendable segment").
		t.holder.Swap([]string{t.segmentID}, map[string]segment.Searchable{
			t.segmentID: proxy.Unwrap(),
			writeLegID:  writeLeg,
		})
		err = rebuildErr
		return
	}
	fresh.MarkOptimized()
	t.holder.Swap([]string{t.segmentID}, map[string]segment.Searchable{
		t.segmentID: fresh,
		writeLegID:  writeLeg,
	})
}

// mustWriteLeg builds the fresh appendable write-leg a ProxySegment
// absorbs writes into while its base is being rebuilt, over base's own
// field configuration and payload schema.
func mustWriteLeg(id string, rng *rand.Rand, base *segment.Segment) *segment.Segment {
	w, err := segment.NewAppendable(id, rng, base.FieldConfigs(), freshPayloadIndex(base.PayloadSchema()))
	if err != nil {
		// base's own configs were already validated once when base was
		// built; a second NewAppendable over the same configs cannot fail.
		panic(err)
	}
	return w
}
