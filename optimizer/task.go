// Package optimizer implements the background segment-optimization
// pipeline: Vacuum, Merge, and Indexing tasks driven by an OptimizerLoop
// (spec.md §4.2).
package optimizer

import (
	"sync"
	"sync/atomic"
)

// stoppableTask is the cooperative-cancellation base every optimizer
// kind embeds (spec.md §4.2: "a background task ... whose cooperative
// cancellation flag is checked at every batch boundary"), grounded on
// the teacher's xact running-flag pattern (xact/xreg/xreg.go's
// Renewable/Get().Abort()).
type stoppableTask struct {
	stopped int32
	done    chan struct{}
	once    sync.Once
	err     error
}

func newStoppableTask() *stoppableTask {
	return &stoppableTask{done: make(chan struct{})}
}

func (t *stoppableTask) Stop() { atomic.StoreInt32(&t.stopped, 1) }

func (t *stoppableTask) Stopped() bool { return atomic.LoadInt32(&t.stopped) == 1 }

// finish is called exactly once, via defer, so Done() closes even if the
// task's run function panics after partial progress (spec.md §4.2: "the
// final step always runs via defer").
func (t *stoppableTask) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *stoppableTask) Done() <-chan struct{} { return t.done }
func (t *stoppableTask) Err() error            { return t.err }
