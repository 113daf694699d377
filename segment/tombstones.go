package segment

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// Tombstones tracks deleted offsets. The bitset is the source of truth;
// the cuckoo filter is a fast probabilistic pre-check so a read-heavy
// IsDeleted path skips the bitset word lookup in the common "definitely
// not deleted" case (spec.md §4.2 "IdTracker ... tombstone set", grounded
// on SPEC_FULL.md §4.2's cuckoo-filter wiring decision). Once the filter
// has failed to take an offset, it is no longer consulted and every
// IsDeleted call reads the bitset.
type Tombstones struct {
	mu          sync.RWMutex
	bits        []uint64
	filter      *cuckoo.Filter
	filterLossy bool
}

func NewTombstones() *Tombstones {
	return &Tombstones{filter: cuckoo.NewFilter(1024)}
}

func keyBytes(offset uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, offset)
	return b
}

func (t *Tombstones) Delete(offset uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	word := int(offset / 64)
	for len(t.bits) <= word {
		t.bits = append(t.bits, 0)
	}
	t.bits[word] |= 1 << (offset % 64)
	k := keyBytes(offset)
	if !t.filter.Lookup(k) && !t.filter.Insert(k) {
		t.filterLossy = true
	}
}

func (t *Tombstones) IsDeleted(offset uint32) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.filterLossy && !t.filter.Lookup(keyBytes(offset)) {
		return false
	}
	word := int(offset / 64)
	if word >= len(t.bits) {
		return false
	}
	return t.bits[word]&(1<<(offset%64)) != 0
}

func (t *Tombstones) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, w := range t.bits {
		for w != 0 {
			n++
			w &= w - 1
		}
	}
	return n
}
