package shard

import (
	"context"
	"math/rand"

	"github.com/vecstore/vecstore/segment"
	"github.com/vecstore/vecstore/snapshot"
)

// RestoreFromSnapshot wholesale-replaces this shard's live segments with
// the ones a restored holder carries — the "download-and-restore" half
// of spec.md §4.4's Snapshot method, step (c), reusing Holder.Swap the
// same way an optimizer task's atomic swap does.
func (s *LocalShard) RestoreFromSnapshot(fresh *segment.Holder) {
	old := s.holder.All()
	oldIDs := make([]string, 0, len(old))
	for id := range old {
		oldIDs = append(oldIDs, id)
	}
	s.holder.Swap(oldIDs, fresh.All())
}

// SnapshotDescriptor captures this shard's current live segments (spec.md
// §4.4 Snapshot step (b): "Snapshot the shard to disk").
func (s *LocalShard) SnapshotDescriptor(name string, createdAt int64) (*snapshot.Descriptor, error) {
	return snapshot.BuildDescriptor(name, createdAt, s.holder)
}

// RestoreSnapshot fetches an archive from backend and installs it as
// this shard's live segments — the method that lets LocalRemoteShard
// satisfy transfer.SnapshotRestorer, so a SnapshotTransfer can instruct
// "to" to download-and-restore.
func (l *LocalRemoteShard) RestoreSnapshot(ctx context.Context, backend snapshot.Backend, archivePath string) error {
	blob, err := backend.Get(ctx, archivePath)
	if err != nil {
		return err
	}
	d, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	fresh, err := snapshot.Restore(d, rand.New(rand.NewSource(1)))
	if err != nil {
		return err
	}
	l.Shard.RestoreFromSnapshot(fresh)
	return nil
}
