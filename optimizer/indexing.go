package optimizer

import (
	"context"
	"path/filepath"

	"github.com/vecstore/vecstore/segment"
)

// IndexingTask promotes one segment's storage to mmap and/or its payload
// column store to the on-disk backend once it crosses the relevant
// thresholds (spec.md §4.2 Indexing). Unlike Vacuum/Merge this mutates
// the segment in place rather than building a replacement, since the
// promotion only swaps each field's backing storage, not its identity.
type IndexingTask struct {
	*stoppableTask

	holder     *segment.Holder
	segmentID  string
	mmapDir    string
	payloadDir string
	th         Thresholds
}

func NewIndexingTask(holder *segment.Holder, segmentID, mmapDir, payloadDir string, th Thresholds) *IndexingTask {
	return &IndexingTask{
		stoppableTask: newStoppableTask(),
		holder:        holder,
		segmentID:     segmentID,
		mmapDir:       mmapDir,
		payloadDir:    payloadDir,
		th:            th,
	}
}

func (t *IndexingTask) Kind() Kind        { return Indexing }
func (t *IndexingTask) SegmentID() string { return t.segmentID }

func (t *IndexingTask) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *IndexingTask) run(ctx context.Context) {
	var err error
	defer func() { t.finish(err) }()

	s, ok := t.holder.Get(t.segmentID)
	base, ok2 := s.(*segment.Segment)
	if !ok || !ok2 {
		return
	}
	info := base.Info()
	if t.Stopped() {
		return
	}
	if !info.MMapped && info.VectorCount >= t.th.MemmapThreshold {
		if err = base.PromoteToMmap(t.mmapDir); err != nil {
			return
		}
	}
	if t.Stopped() {
		return
	}
	if info.HasPayload && !info.PayloadIndexed && info.VectorCount >= t.th.PayloadIndexingThreshold {
		path := filepath.Join(t.payloadDir, t.segmentID+".payload.db")
		if err = base.PromotePayload(path); err != nil {
			return
		}
	}
	base.MarkOptimized()
}
