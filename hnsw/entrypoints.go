package hnsw

import "sync"

// entryPoint is one candidate entry into the graph, tracked alongside the
// max level any point has reached (spec.md §4.1 step 2).
type entryPoint struct {
	offset uint32
	level  int
}

// EntryPoints is the build-time registry consulted under a short exclusive
// critical section (spec.md §4.1: "under an exclusive short critical
// section"). It is intentionally dumb: callers supply the filter/level
// predicate and get back one candidate, or none.
type EntryPoints struct {
	mu     sync.Mutex
	points []entryPoint
}

func NewEntryPoints() *EntryPoints {
	return &EntryPoints{}
}

// FindOrRegister looks for a registered entry point with level >= minLevel
// that passes accept. If none qualifies, offset itself is registered as a
// new entry point and ok is false — mirroring spec.md §4.1 step 2 ("If none
// exists, register p as a new entry point and stop").
func (e *EntryPoints) FindOrRegister(offset uint32, level int, minLevel int, accept func(uint32) bool) (found entryPoint, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cand := range e.points {
		if cand.level >= minLevel && (accept == nil || accept(cand.offset)) {
			found = cand
			ok = true
			break
		}
	}
	if !ok {
		e.points = append(e.points, entryPoint{offset: offset, level: level})
	}
	return found, ok
}

// Any returns an arbitrary registered entry point for unfiltered search,
// or false if the graph is empty.
func (e *EntryPoints) Any() (entryPoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.points) == 0 {
		return entryPoint{}, false
	}
	best := e.points[0]
	for _, cand := range e.points[1:] {
		if cand.level > best.level {
			best = cand
		}
	}
	return best, true
}

// Consider adds offset to the registry once it has fewer than capacity
// members, or replaces the lowest-level member if offset's level is
// higher (spec.md §4.1 `entry_points_num`: how many top-level entries the
// build keeps on hand).
func (e *EntryPoints) Consider(offset uint32, level int, capacity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.points {
		if p.offset == offset {
			return
		}
	}
	if len(e.points) < capacity {
		e.points = append(e.points, entryPoint{offset: offset, level: level})
		return
	}
	worst := 0
	for i := 1; i < len(e.points); i++ {
		if e.points[i].level < e.points[worst].level {
			worst = i
		}
	}
	if level > e.points[worst].level {
		e.points[worst] = entryPoint{offset: offset, level: level}
	}
}

// Bump raises offset's recorded level if level is higher than any entry
// point already tracking it, registering it if it wasn't tracked at all.
// This backs the "monotonic fetch-max" max-level counter (spec.md §4.1
// Concurrency).
func (e *EntryPoints) Bump(offset uint32, level int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.points {
		if e.points[i].offset == offset {
			if level > e.points[i].level {
				e.points[i].level = level
			}
			return
		}
	}
	e.points = append(e.points, entryPoint{offset: offset, level: level})
}
