package hnsw

import "sync"

// lockShards bounds the number of distinct mutexes backing the per-point
// link-list lock table (spec.md §4.1 Concurrency, spec.md §5: "a per-point
// RWMutex obtained from a sharded lock table to bound memory").
const lockShards = 256

type lockTable struct {
	mus [lockShards]sync.RWMutex
}

func (lt *lockTable) shard(offset uint32) *sync.RWMutex {
	return &lt.mus[offset%lockShards]
}

// lockPair takes two offsets' shard locks in ascending lock-shard index
// order, so any two shard mutexes are always acquired in the same order
// and concurrent pairs cannot deadlock. When both offsets land in the same
// shard only one lock is taken.
func (lt *lockTable) lockPair(a, b uint32) (unlock func()) {
	sa, sb := lt.shard(a), lt.shard(b)
	if sa == sb {
		sa.Lock()
		return sa.Unlock
	}
	if a%lockShards < b%lockShards {
		sa.Lock()
		sb.Lock()
		return func() { sb.Unlock(); sa.Unlock() }
	}
	sb.Lock()
	sa.Lock()
	return func() { sa.Unlock(); sb.Unlock() }
}

// links holds, per level, the adjacency list for every point known at that
// level. Each level's list is guarded by the sharded lock table so two
// workers touching different points at the same level don't block each
// other (spec.md §4.1 Concurrency).
type links struct {
	mu     sync.RWMutex // guards growth of the `levels` slice only
	lt     lockTable
	levels []levelLinks // levels[k] holds level-k adjacency for all points reaching level k
}

type levelLinks struct {
	adj map[uint32][]uint32
}

func newLinks() *links {
	return &links{levels: []levelLinks{{adj: make(map[uint32][]uint32)}}}
}

// ensureLevel grows the level slice so index k is valid.
func (l *links) ensureLevel(k int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.levels) <= k {
		l.levels = append(l.levels, levelLinks{adj: make(map[uint32][]uint32)})
	}
}

func (l *links) levelAt(k int) *levelLinks {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if k >= len(l.levels) {
		return nil
	}
	return &l.levels[k]
}

// Neighbors returns a copy of offset's level-k neighbor list (read-locked
// via the sharded table).
func (l *links) Neighbors(k int, offset uint32) []uint32 {
	lvl := l.levelAt(k)
	if lvl == nil {
		return nil
	}
	s := l.lt.shard(offset)
	s.RLock()
	defer s.RUnlock()
	src := lvl.adj[offset]
	out := make([]uint32, len(src))
	copy(out, src)
	return out
}

// SetNeighbors overwrites offset's level-k neighbor list.
func (l *links) SetNeighbors(k int, offset uint32, neighbors []uint32) {
	l.ensureLevel(k)
	lvl := l.levelAt(k)
	s := l.lt.shard(offset)
	s.Lock()
	lvl.adj[offset] = append([]uint32(nil), neighbors...)
	s.Unlock()
}

// AddEdge links a<->b at level k both ways, taking both points' locks
// through lockPair (spec.md §4.1 Concurrency). fanout bounds how many
// neighbors b may keep; if adding a overflows it, reselect is called to
// re-prune b's list from the union of its existing neighbors and a.
func (l *links) AddEdge(k int, a, b uint32, fanout int, reselect func(point uint32, candidates []uint32) []uint32) {
	l.ensureLevel(k)
	lvl := l.levelAt(k)
	unlock := l.lt.lockPair(a, b)
	defer unlock()

	lvl.adj[a] = appendUnique(lvl.adj[a], b)

	existing := lvl.adj[b]
	if containsU32(existing, a) {
		return
	}
	union := append(append([]uint32(nil), existing...), a)
	if len(union) <= fanout {
		lvl.adj[b] = union
		return
	}
	lvl.adj[b] = reselect(b, union)
}

func appendUnique(list []uint32, v uint32) []uint32 {
	if containsU32(list, v) {
		return list
	}
	return append(list, v)
}

func containsU32(list []uint32, v uint32) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// MaxLevel reports the highest level index with any adjacency recorded.
func (l *links) MaxLevel() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.levels) - 1
}
