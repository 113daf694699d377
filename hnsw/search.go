package hnsw

import (
	"context"

	"github.com/vecstore/vecstore/vstorage"
)

// SearchParams configures one query (spec.md §4.1 Search contract).
type SearchParams struct {
	Top int
	Ef  int
}

// Hit is one scored result, in strict score order.
type Hit struct {
	Offset uint32
	Score  float32
}

// Search implements spec.md §4.1's search contract: greedy-descend from
// the global entry point to level 0, then beam search with width ef.
// Returns nil, nil (never an error) when the filter rejects everything or
// the graph has no entry point yet (spec.md: "Search returns empty if the
// filter rejects everything; it is never a failure").
func (g *GraphLayersBuilder) Search(ctx context.Context, query []float32, filter FilterFunc, deleted DeletedFunc, params SearchParams) ([]Hit, error) {
	scorer, err := vstorage.NewRawScorer(g.storage, query)
	if err != nil {
		return nil, err
	}
	ord := orderingFrom(scorer.Ordering())

	entry, ok := g.entryPoints.Any()
	if !ok {
		return nil, nil
	}

	skip := func(o uint32) bool {
		if deleted != nil && deleted(o) {
			return true
		}
		if filter != nil && !filter(o) {
			return true
		}
		return false
	}

	current := entry.offset
	for k := entry.level; k > 0; k-- {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		current = g.greedyDescend(scorer, skip, k, current, ord)
	}

	ef := params.Ef
	if ef < params.Top {
		ef = params.Top
	}
	if ef <= 0 {
		ef = 1
	}
	vl := g.visited.Get(g.storage.Size() + 1)
	defer g.visited.Put(vl)
	results := g.beamSearch(scorer, skip, 0, current, ef, ord, vl)

	sorted := results.Sorted()
	if params.Top > 0 && len(sorted) > params.Top {
		sorted = sorted[:params.Top]
	}
	hits := make([]Hit, len(sorted))
	for i, s := range sorted {
		hits[i] = Hit{Offset: s.offset, Score: s.score}
	}
	return hits, nil
}
