// Package hashring implements the consistent hash ring that routes point
// ids to shards, the resharding state machine that migrates a shard_key
// between ring sizes, and the hash-ring filter predicate both lean on
// (spec.md §4.3).
package hashring

import (
	"sort"
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// ringSalt seeds the digest the way the teacher's fs/hrw.go seeds its own
// node-selection digest with a fixed constant (there: cos.MLCG32) rather
// than leaving xxhash's default seed implicit.
const ringSalt = 0x9e3779b97f4a7c15

// vnodesPerShard trades ring-build cost for distribution evenness; 64 is
// the usual middle ground for a ring with a handful to a few hundred
// shards.
const vnodesPerShard = 64

func digest(b []byte) uint64 { return xxhash.Checksum64S(b, ringSalt) }

type vnode struct {
	hash    uint64
	shardID string
}

// Ring is a sorted-ring consistent hash: a point lands on the clockwise-
// nearest vnode's shard (spec.md §4.3: "hashing (shard_key, id) and
// choosing the clockwise-nearest node").
type Ring struct {
	vnodes []vnode // kept sorted by hash
}

// NewRing builds a ring over shardIDs, sorted once at construction.
func NewRing(shardIDs []string) *Ring {
	r := &Ring{}
	for _, id := range shardIDs {
		r.addLocked(id)
	}
	r.sort()
	return r
}

func (r *Ring) addLocked(shardID string) {
	for i := 0; i < vnodesPerShard; i++ {
		h := digest([]byte(shardID + "#" + strconv.Itoa(i)))
		r.vnodes = append(r.vnodes, vnode{hash: h, shardID: shardID})
	}
}

func (r *Ring) sort() {
	sort.Slice(r.vnodes, func(i, j int) bool { return r.vnodes[i].hash < r.vnodes[j].hash })
}

// Clone returns an independent copy, used by the resharding state machine
// to derive a new ring from the old one without aliasing it.
func (r *Ring) Clone() *Ring {
	out := &Ring{vnodes: append([]vnode(nil), r.vnodes...)}
	return out
}

// WithShard returns a new ring with shardID added (Up-direction reshard).
func (r *Ring) WithShard(shardID string) *Ring {
	out := r.Clone()
	out.addLocked(shardID)
	out.sort()
	return out
}

// WithoutShard returns a new ring with every vnode for shardID removed
// (Down-direction reshard).
func (r *Ring) WithoutShard(shardID string) *Ring {
	out := &Ring{vnodes: make([]vnode, 0, len(r.vnodes))}
	for _, v := range r.vnodes {
		if v.shardID != shardID {
			out.vnodes = append(out.vnodes, v)
		}
	}
	return out
}

// ShardIDs returns the distinct shard ids on the ring, in no particular
// order.
func (r *Ring) ShardIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range r.vnodes {
		if !seen[v.shardID] {
			seen[v.shardID] = true
			out = append(out, v.shardID)
		}
	}
	return out
}

// Route hashes (shardKey, id) and returns the clockwise-nearest vnode's
// shard id.
func (r *Ring) Route(shardKey, id string) (string, bool) {
	if len(r.vnodes) == 0 {
		return "", false
	}
	h := digest([]byte(shardKey + "/" + id))
	i := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].hash >= h })
	if i == len(r.vnodes) {
		i = 0 // wrap around the ring
	}
	return r.vnodes[i].shardID, true
}
