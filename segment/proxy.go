package segment

import (
	"context"
	"sort"

	"github.com/vecstore/vecstore/hnsw"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/vstorage"
)

// ProxySegment wraps an optimized segment S plus a fresh appendable
// segment W while the optimizer rebuilds S in the background: reads are
// served from both and merged, writes go only to W, deletes against S are
// recorded in an overlay tombstone set (spec.md §4.2 step 1).
type ProxySegment struct {
	Base    *Segment
	Write   *Segment
	overlay *Tombstones
}

func NewProxySegment(base, write *Segment) *ProxySegment {
	return &ProxySegment{Base: base, Write: write, overlay: NewTombstones()}
}

func (p *ProxySegment) Upsert(id PointID, version uint64, vecs map[string][]float32, pl payload.Point) error {
	return p.Write.Upsert(id, version, vecs, pl)
}

func (p *ProxySegment) Delete(id PointID) {
	if off, ok := p.Base.ids.Lookup(id); ok {
		p.overlay.Delete(off)
	}
	p.Write.Delete(id)
}

func (p *ProxySegment) Search(ctx context.Context, vectorName string, query []float32, filter hnsw.FilterFunc, top, ef int) ([]SearchResult, error) {
	baseHits, err := p.Base.searchInternal(ctx, vectorName, query, filter, p.overlay.IsDeleted, top, ef)
	if err != nil {
		return nil, err
	}
	writeHits, err := p.Write.Search(ctx, vectorName, query, filter, top, ef)
	if err != nil {
		return nil, err
	}
	metric, _ := p.Base.MetricFor(vectorName)
	return mergeByScore(metric, append(baseHits, writeHits...), top), nil
}

// Unwrap returns Base, discarding W's writes accounting (the caller is
// responsible for folding W's points back in first) — the abort path of
// spec.md §4.2's failure semantics: "the ProxySegment is unwrapped back
// to S, and W is merged into S (or retained as a new appendable
// segment)."
func (p *ProxySegment) Unwrap() *Segment { return p.Base }

func mergeByScore(metric vstorage.Metric, results []SearchResult, top int) []SearchResult {
	ord := vstorage.OrderingFor(metric)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return false
		}
		return ord.Better(results[i].Score, results[j].Score)
	})
	if top > 0 && len(results) > top {
		results = results[:top]
	}
	return results
}
