package hnsw

import (
	"container/heap"

	"github.com/vecstore/vecstore/vstorage"
)

// greedyDescend repeatedly moves to the best-scoring neighbor at level
// until none improves (spec.md §4.1 step 3), used to walk down from a
// high-level entry point to the point's own insertion/search level.
func (g *GraphLayersBuilder) greedyDescend(scorer vstorage.RawScorer, skip func(uint32) bool, level int, from uint32, ord ordering) uint32 {
	current := from
	currentScore, err := scorer.ScorePoint(current)
	if err != nil {
		return current
	}
	for {
		improved := false
		for _, n := range g.links.Neighbors(level, current) {
			if skip != nil && skip(n) {
				continue
			}
			s, err := scorer.ScorePoint(n)
			if err != nil {
				continue
			}
			if ord.better(s, currentScore) {
				current = n
				currentScore = s
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return current
}

// beamSearch runs a bounded best-first search at level starting from
// entry, visiting each point at most once via vl (spec.md §4.1 search
// contract). skip, when non-nil, excludes deleted or filter-rejected
// candidates from ever entering the frontier.
func (g *GraphLayersBuilder) beamSearch(scorer vstorage.RawScorer, skip func(uint32) bool, level int, entry uint32, ef int, ord ordering, vl *visitedList) *bounded {
	frontier := newFrontierHeap(ord)
	heap.Init(frontier)
	results := newBounded(ord, ef)

	if !vl.IsVisited(entry) {
		vl.Visit(entry)
		if skip == nil || !skip(entry) {
			if s, err := scorer.ScorePoint(entry); err == nil {
				heap.Push(frontier, scored{entry, s})
				results.Offer(scored{entry, s})
			}
		}
	}

	for frontier.Len() > 0 {
		top := heap.Pop(frontier).(scored)
		if worst, ok := results.Worst(); ok && results.Len() >= ef && !ord.better(top.score, worst.score) {
			break
		}
		for _, n := range g.links.Neighbors(level, top.offset) {
			if vl.IsVisited(n) {
				continue
			}
			vl.Visit(n)
			if skip != nil && skip(n) {
				continue
			}
			s, err := scorer.ScorePoint(n)
			if err != nil {
				continue
			}
			heap.Push(frontier, scored{n, s})
			results.Offer(scored{n, s})
		}
	}
	return results
}
