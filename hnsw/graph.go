// Package hnsw builds and searches the per-segment, per-named-vector HNSW
// graph (spec.md §4.1). A GraphLayersBuilder owns one graph over one
// vstorage.Storage; Segment wires one per declared vector.
package hnsw

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/vstorage"
)

// Params configures a build (spec.md §4.1 Build contract).
type Params struct {
	M              int // non-zero-layer fanout
	M0             int // layer-0 fanout
	EfConstruct    int
	UseHeuristic   bool
	EntryPointsNum int
}

func (p Params) fanout(level int) int {
	if level == 0 {
		return p.M0
	}
	return p.M
}

// GPUCompanion is the optional accelerator hook spec.md §2 describes; left
// unimplemented here, it is the seam a real build would plug a GPU level-0
// builder into.
type GPUCompanion interface {
	BuildLevel0(ctx context.Context, storage vstorage.Storage) error
}

// DeletedFunc reports whether offset is tombstoned (true = exclude).
type DeletedFunc func(offset uint32) bool

// FilterFunc reports whether offset passes a payload filter (true = keep).
// A payload.Index's FilterContext satisfies this directly.
type FilterFunc func(offset uint32) bool

// GraphLayersBuilder is the mutable HNSW graph for one vector field of one
// segment.
type GraphLayersBuilder struct {
	params  Params
	storage vstorage.Storage

	rngMu sync.Mutex
	rng   *rand.Rand

	links       *links
	entryPoints *EntryPoints
	visited     *VisitedPool
	maxLevel    int32 // atomic

	gpu GPUCompanion
}

// NewGraphLayersBuilder validates params and wires defaults the way the
// teacher's constructors default a zero-valued config field (spec.md §4.1:
// m0/ef_construct left unset fall back to the usual HNSW multiples of m).
func NewGraphLayersBuilder(params Params, storage vstorage.Storage, rng *rand.Rand) (*GraphLayersBuilder, error) {
	if params.M <= 0 {
		return nil, cmn.NewBadRequest("hnsw: m must be non-zero")
	}
	if params.M0 <= 0 {
		params.M0 = 2 * params.M
	}
	if params.EfConstruct <= 0 {
		params.EfConstruct = 4 * params.M
	}
	if params.EntryPointsNum <= 0 {
		params.EntryPointsNum = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &GraphLayersBuilder{
		params:      params,
		storage:     storage,
		rng:         rng,
		links:       newLinks(),
		entryPoints: NewEntryPoints(),
		visited:     NewVisitedPool(1024),
	}, nil
}

func (g *GraphLayersBuilder) SetGPUCompanion(c GPUCompanion) { g.gpu = c }

// Params returns the build parameters this graph was constructed with,
// used by callers (segment rebuild, optimizer promotion) that need to
// reconstruct an equivalent graph over new storage.
func (g *GraphLayersBuilder) Params() Params { return g.params }

// MaxLevel is the monotonic fetch-max counter from spec.md §4.1 Concurrency.
func (g *GraphLayersBuilder) MaxLevel() int { return int(atomic.LoadInt32(&g.maxLevel)) }

func (g *GraphLayersBuilder) bumpMaxLevel(level int) {
	for {
		cur := atomic.LoadInt32(&g.maxLevel)
		if int32(level) <= cur {
			return
		}
		if atomic.CompareAndSwapInt32(&g.maxLevel, cur, int32(level)) {
			return
		}
	}
}

func orderingFrom(o vstorage.Ordering) ordering {
	return ordering{smallBetter: o == vstorage.SmallBetter}
}

// sampleLevel draws a level by geometric distribution with factor
// 1/ln(m) (spec.md §4.1 step 1).
func (g *GraphLayersBuilder) sampleLevel() int {
	g.rngMu.Lock()
	u := g.rng.Float64()
	g.rngMu.Unlock()
	if u <= 0 {
		u = 1e-12
	}
	factor := 1.0 / math.Log(float64(g.params.M))
	return int(math.Floor(-math.Log(u) * factor))
}

// Insert runs the per-point build algorithm (spec.md §4.1 steps 1-4).
func (g *GraphLayersBuilder) Insert(offset uint32, deleted DeletedFunc) error {
	vec, err := g.storage.Get(offset)
	if err != nil {
		return cmn.NewServiceError(err, "hnsw: build storage has no vector for offset %d", offset)
	}
	scorer, err := vstorage.NewRawScorer(g.storage, vec)
	if err != nil {
		return cmn.NewServiceError(err, "hnsw: wrong-dimension vector at offset %d", offset)
	}
	ord := orderingFrom(scorer.Ordering())

	skip := func(o uint32) bool { return deleted != nil && deleted(o) }
	level := g.sampleLevel()

	accept := func(o uint32) bool { return !skip(o) }
	entry, found := g.entryPoints.FindOrRegister(offset, level, level, accept)
	if !found {
		g.bumpMaxLevel(level)
		return nil
	}

	current := entry.offset
	for k := entry.level; k > level; k-- {
		current = g.greedyDescend(scorer, skip, k, current, ord)
	}

	top := entry.level
	if level < top {
		top = level
	}
	for k := top; k >= 0; k-- {
		vl := g.visited.Get(g.storage.Size() + 1)
		cands := g.beamSearch(scorer, skip, k, current, g.params.EfConstruct, ord, vl)
		g.visited.Put(vl)

		sortedCands := cands.Sorted()
		if len(sortedCands) > 0 {
			current = sortedCands[0].offset
		}

		fanout := g.params.fanout(k)
		var neighbors []uint32
		if g.params.UseHeuristic {
			neighbors = g.selectHeuristic(ord, sortedCands, fanout, scorer)
		} else {
			neighbors = topN(sortedCands, fanout)
		}
		g.links.SetNeighbors(k, offset, neighbors)
		for _, n := range neighbors {
			g.linkBack(k, offset, n, ord)
		}
	}

	g.entryPoints.Consider(offset, level, g.params.EntryPointsNum)
	g.bumpMaxLevel(level)
	return nil
}

// linkBack writes the reverse edge q -> p, re-pruning q's list via the
// same heuristic from the union of its existing neighbors and p if it
// would otherwise overflow the level's fanout (spec.md §4.1 step 4, last
// bullet).
func (g *GraphLayersBuilder) linkBack(level int, p, q uint32, ord ordering) {
	fanout := g.params.fanout(level)
	g.links.AddEdge(level, p, q, fanout, func(point uint32, candidates []uint32) []uint32 {
		return g.reselect(ord, point, candidates, fanout)
	})
}

func (g *GraphLayersBuilder) reselect(ord ordering, point uint32, candidates []uint32, fanout int) []uint32 {
	qvec, err := g.storage.Get(point)
	if err != nil {
		return topNOffsets(candidates, fanout)
	}
	scorer, err := vstorage.NewRawScorer(g.storage, qvec)
	if err != nil {
		return topNOffsets(candidates, fanout)
	}
	scoredCands := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s, err := scorer.ScorePoint(c)
		if err != nil {
			continue
		}
		scoredCands = append(scoredCands, scored{c, s})
	}
	sort.Slice(scoredCands, func(i, j int) bool { return less(ord, scoredCands[i], scoredCands[j]) })
	if g.params.UseHeuristic {
		return g.selectHeuristic(ord, scoredCands, fanout, scorer)
	}
	return topN(scoredCands, fanout)
}

// selectHeuristic implements "not-closer-than-base" pruning (spec.md §4.1
// step 4): walk candidates best-first, accept one only if no
// already-accepted neighbor is closer to it than it is to the base point.
func (g *GraphLayersBuilder) selectHeuristic(ord ordering, candidates []scored, m int, scorer vstorage.RawScorer) []uint32 {
	selected := make([]scored, 0, m)
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		good := true
		for _, s := range selected {
			d, err := scorer.ScoreInternal(s.offset, c.offset)
			if err != nil {
				continue
			}
			if ord.better(d, c.score) {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		}
	}
	out := make([]uint32, len(selected))
	for i, s := range selected {
		out[i] = s.offset
	}
	return out
}

func topN(candidates []scored, n int) []uint32 {
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].offset
	}
	return out
}

func topNOffsets(candidates []uint32, n int) []uint32 {
	if n > len(candidates) {
		n = len(candidates)
	}
	return append([]uint32(nil), candidates[:n]...)
}
