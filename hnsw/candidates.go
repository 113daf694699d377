package hnsw

import (
	"container/heap"
	"math"
)

// scored pairs an internal offset with its score against the current
// query/point, plus enough to break ties by lower offset (spec.md §4.1
// Edge cases: "Ties on score break by lower internal offset").
type scored struct {
	offset uint32
	score  float32
}

func less(ord ordering, a, b scored) bool {
	if a.score != b.score {
		return ord.better(a.score, b.score)
	}
	return a.offset < b.offset
}

// ordering abstracts vstorage.Ordering without importing vstorage here,
// so the heap code stays storage-agnostic; callers adapt via orderingOf.
type ordering struct {
	smallBetter bool
}

func (o ordering) better(a, b float32) bool {
	if o.smallBetter {
		return a < b
	}
	return a > b
}

func (o ordering) worst() float32 {
	if o.smallBetter {
		return float32(math.Inf(1))
	}
	return float32(math.Inf(-1))
}

// candidateHeap is a best-first min-oriented-by-"worse" max-heap: Pop
// always yields the WORST element first, which is what a bounded top-K
// accumulator needs (drop the worst once over capacity). A separate
// frontier (frontierHeap) pops the BEST element first for beam expansion.
type candidateHeap struct {
	items []scored
	ord   ordering
}

func newCandidateHeap(ord ordering) *candidateHeap { return &candidateHeap{ord: ord} }

func (h *candidateHeap) Len() int { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool {
	// worst-first: invert "better" so the root is the worst candidate.
	return less(h.ord, h.items[j], h.items[i])
}
func (h *candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)    { h.items = append(h.items, x.(scored)) }
func (h *candidateHeap) Pop() any {
	n := len(h.items)
	v := h.items[n-1]
	h.items = h.items[:n-1]
	return v
}

// bounded accumulates up to cap results, keeping only the best cap by
// score (spec.md §4.1: "bounded priority queue of candidates").
type bounded struct {
	h   *candidateHeap
	cap int
}

func newBounded(ord ordering, capacity int) *bounded {
	h := newCandidateHeap(ord)
	heap.Init(h)
	return &bounded{h: h, cap: capacity}
}

func (b *bounded) Offer(c scored) {
	if b.h.Len() < b.cap {
		heap.Push(b.h, c)
		return
	}
	if b.h.Len() == 0 {
		return
	}
	worst := b.h.items[0]
	if !less(b.h.ord, c, worst) {
		return // c is worse than or equal to the current worst: drop
	}
	heap.Pop(b.h)
	heap.Push(b.h, c)
}

// Worst returns the current worst-scored member, used to decide whether a
// frontier candidate can possibly improve the bound.
func (b *bounded) Worst() (scored, bool) {
	if b.h.Len() == 0 {
		return scored{}, false
	}
	return b.h.items[0], true
}

func (b *bounded) Len() int { return b.h.Len() }

// Sorted drains the accumulator best-first.
func (b *bounded) Sorted() []scored {
	out := make([]scored, b.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(b.h).(scored)
	}
	return out
}

// frontierHeap pops the BEST candidate first, used to drive beam
// expansion (spec.md §4.1: "repeatedly move to the neighbor with the best
// score until none improves", and beam search's frontier).
type frontierHeap struct {
	items []scored
	ord   ordering
}

func newFrontierHeap(ord ordering) *frontierHeap {
	return &frontierHeap{ord: ord}
}

func (h *frontierHeap) Len() int            { return len(h.items) }
func (h *frontierHeap) Less(i, j int) bool  { return less(h.ord, h.items[i], h.items[j]) }
func (h *frontierHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *frontierHeap) Push(x any)          { h.items = append(h.items, x.(scored)) }
func (h *frontierHeap) Pop() any {
	n := len(h.items)
	v := h.items[n-1]
	h.items = h.items[:n-1]
	return v
}
