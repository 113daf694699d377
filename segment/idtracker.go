// Package segment implements the per-shard Segment/SegmentHolder/
// ProxySegment pipeline (spec.md §3, §4.2).
package segment

import (
	"sync"

	"github.com/google/uuid"
)

// PointID is either a UUID or a u64 external id (spec.md §3 Point.id).
type PointID struct {
	UUID   uuid.UUID
	Num    uint64
	IsUUID bool
}

func UUIDPointID(u uuid.UUID) PointID { return PointID{UUID: u, IsUUID: true} }
func NumPointID(n uint64) PointID     { return PointID{Num: n} }

func (p PointID) key() any {
	if p.IsUUID {
		return p.UUID
	}
	return p.Num
}

// IdTracker maps external PointID <-> internal offset and tracks each
// offset's version for idempotent replay (spec.md §3 Segment attributes,
// §4.2 invariant: "an update with a lower or equal version is a no-op").
type IdTracker struct {
	mu       sync.RWMutex
	toOffset map[any]uint32
	toID     []PointID
	versions []uint64
	free     []uint32
}

func NewIdTracker() *IdTracker {
	return &IdTracker{toOffset: make(map[any]uint32)}
}

// Assign returns id's offset, allocating (or reusing a freed) one if id
// has never been seen.
func (t *IdTracker) Assign(id PointID) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if off, ok := t.toOffset[id.key()]; ok {
		return off
	}
	var off uint32
	if n := len(t.free); n > 0 {
		off = t.free[n-1]
		t.free = t.free[:n-1]
		t.toID[off] = id
		t.versions[off] = 0
	} else {
		off = uint32(len(t.toID))
		t.toID = append(t.toID, id)
		t.versions = append(t.versions, 0)
	}
	t.toOffset[id.key()] = off
	return off
}

func (t *IdTracker) Lookup(id PointID) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	off, ok := t.toOffset[id.key()]
	return off, ok
}

func (t *IdTracker) ExternalID(offset uint32) (PointID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(offset) >= len(t.toID) {
		return PointID{}, false
	}
	return t.toID[offset], true
}

// CheckVersion reports whether version is strictly newer than offset's
// recorded version.
func (t *IdTracker) CheckVersion(offset uint32, version uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return version > t.versions[offset]
}

func (t *IdTracker) Version(offset uint32) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(offset) >= len(t.versions) {
		return 0
	}
	return t.versions[offset]
}

func (t *IdTracker) SetVersion(offset uint32, version uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.versions[offset] = version
}

// Release drops id's mapping and frees its offset for reuse (optimizer
// compaction).
func (t *IdTracker) Release(id PointID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	off, ok := t.toOffset[id.key()]
	if !ok {
		return
	}
	delete(t.toOffset, id.key())
	t.free = append(t.free, off)
}

// Range calls fn for every assigned offset in ascending order, stopping
// early if fn returns false.
func (t *IdTracker) Range(fn func(offset uint32, id PointID) bool) {
	t.mu.RLock()
	ids := append([]PointID(nil), t.toID...)
	t.mu.RUnlock()
	for offset, id := range ids {
		if !fn(uint32(offset), id) {
			return
		}
	}
}

func (t *IdTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.toOffset)
}
