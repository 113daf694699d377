package hnsw

import "sync"

// VisitedPool hands out generation-tagged visited lists so that resetting
// between searches is O(touched) rather than O(n) (spec.md §4.1: "visited
// list pool"). Each list is a flat []uint32 of generation stamps; a point
// is "visited" iff list[offset] == the list's current generation.
type VisitedPool struct {
	pool sync.Pool
	size int
}

func NewVisitedPool(size int) *VisitedPool {
	vp := &VisitedPool{size: size}
	vp.pool.New = func() any {
		return &visitedList{gen: make([]uint32, size)}
	}
	return vp
}

type visitedList struct {
	gen        []uint32
	generation uint32
}

// Get returns a list sized at least n, growing and clearing it if the pool
// handed back something stale or undersized.
func (vp *VisitedPool) Get(n int) *visitedList {
	vl := vp.pool.Get().(*visitedList)
	if len(vl.gen) < n {
		vl.gen = make([]uint32, n)
		vl.generation = 0
	}
	vl.generation++
	if vl.generation == 0 { // wrapped: wipe and restart
		for i := range vl.gen {
			vl.gen[i] = 0
		}
		vl.generation = 1
	}
	return vl
}

func (vp *VisitedPool) Put(vl *visitedList) {
	vp.pool.Put(vl)
}

func (vl *visitedList) Visit(offset uint32) {
	vl.gen[offset] = vl.generation
}

func (vl *visitedList) IsVisited(offset uint32) bool {
	return vl.gen[offset] == vl.generation
}
