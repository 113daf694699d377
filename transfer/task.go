package transfer

import (
	"sync"
	"sync/atomic"
)

// cancelable is the same cooperative-cancellation base optimizer.Renewable
// tasks embed (grounded on the teacher's xact running-flag pattern),
// duplicated here rather than imported because a shard transfer's
// lifecycle (one-shot Run, not Renew-or-reuse) doesn't share the
// optimizer package's Registry semantics.
type cancelable struct {
	cancelled int32
	done      chan struct{}
	once      sync.Once
	err       error
}

func newCancelable() *cancelable {
	return &cancelable{done: make(chan struct{})}
}

func (c *cancelable) Cancel() { atomic.StoreInt32(&c.cancelled, 1) }

func (c *cancelable) Cancelled() bool { return atomic.LoadInt32(&c.cancelled) == 1 }

func (c *cancelable) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *cancelable) Done() <-chan struct{} { return c.done }
func (c *cancelable) Err() error            { return c.err }
