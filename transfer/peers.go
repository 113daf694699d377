package transfer

import (
	"sort"
	"sync"

	"github.com/vecstore/vecstore/shard"
)

// SelectSource picks, among peers whose replica is Active and not `to`,
// the one with the fewest concurrent transfers — ties break on lowest
// peer id, the deterministic rule SPEC_FULL.md §4.4 names for this Open
// Question (spec.md §4.4 "Source selection").
func SelectSource(states map[string]shard.ReplicaState, concurrentTransfers map[string]int, to string) (string, bool) {
	ids := activePeerIDs(states)
	best, bestLoad, found := "", 0, false
	for _, p := range ids {
		if p == to {
			continue
		}
		load := concurrentTransfers[p]
		if !found || load < bestLoad {
			best, bestLoad, found = p, load, true
		}
	}
	return best, found
}

// SelectReplicaToAdd picks the peer with the fewest replicas overall,
// excluding peers that already hold this shard (spec.md §4.4
// "Replica-to-add").
func SelectReplicaToAdd(candidates []string, replicaCount map[string]int, alreadyHolds map[string]bool) (string, bool) {
	ids := append([]string(nil), candidates...)
	sort.Strings(ids)
	best, bestCount, found := "", 0, false
	for _, p := range ids {
		if alreadyHolds[p] {
			continue
		}
		count := replicaCount[p]
		if !found || count < bestCount {
			best, bestCount, found = p, count, true
		}
	}
	return best, found
}

// SelectReplicaToRemove prefers a non-Active replica; among equals it
// picks the peer carrying the most replicas overall (spec.md §4.4
// "Replica-to-remove").
func SelectReplicaToRemove(states map[string]shard.ReplicaState, replicaCount map[string]int) (string, bool) {
	ids := make([]string, 0, len(states))
	for p := range states {
		ids = append(ids, p)
	}
	sort.Strings(ids)

	best, bestRank, bestCount, found := "", 0, 0, false
	for _, p := range ids {
		rank := 1
		if states[p] != shard.Active {
			rank = 0
		}
		count := replicaCount[p]
		switch {
		case !found:
			best, bestRank, bestCount, found = p, rank, count, true
		case rank < bestRank:
			best, bestRank, bestCount = p, rank, count
		case rank == bestRank && count > bestCount:
			best, bestRank, bestCount = p, rank, count
		}
	}
	return best, found
}

func activePeerIDs(states map[string]shard.ReplicaState) []string {
	ids := make([]string, 0, len(states))
	for p, st := range states {
		if st == shard.Active {
			ids = append(ids, p)
		}
	}
	sort.Strings(ids)
	return ids
}

// ConflictTracker enforces spec.md §4.4's strict conflict rule: no two
// active transfers may share any peer across the entire collection.
type ConflictTracker struct {
	mu   sync.Mutex
	busy map[string]bool
}

func NewConflictTracker() *ConflictTracker {
	return &ConflictTracker{busy: make(map[string]bool)}
}

// Reserve locks every peer in peers for one transfer. On success it
// returns a release func to call when the transfer ends; on conflict it
// returns ok=false without reserving anything (all-or-nothing).
func (c *ConflictTracker) Reserve(peers ...string) (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range peers {
		if c.busy[p] {
			return nil, false
		}
	}
	for _, p := range peers {
		c.busy[p] = true
	}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, p := range peers {
			delete(c.busy, p)
		}
	}, true
}
