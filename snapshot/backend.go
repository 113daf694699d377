package snapshot

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vecstore/vecstore/cmn"
)

// Backend is the pluggable storage seam a Snapshot archive is written
// through (SPEC_FULL.md §4.4): local filesystem for single-node
// deployments and tests, cloud object stores for everything else. Every
// implementation is keyed by the same archive path shape:
// "<collection>/<shard_id>/<snapshot_name>".
type Backend interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// ArchivePath builds the archive path shape SPEC_FULL.md §4.4 names.
func ArchivePath(collection, shardID, snapshotName string) string {
	return filepath.ToSlash(filepath.Join(collection, shardID, snapshotName))
}

// LocalBackend stores archives under a base directory on the local
// filesystem.
type LocalBackend struct {
	BaseDir string
}

func NewLocalBackend(baseDir string) *LocalBackend { return &LocalBackend{BaseDir: baseDir} }

func (b *LocalBackend) Put(_ context.Context, path string, data []byte) error {
	full := filepath.Join(b.BaseDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return cmn.NewServiceError(err, "snapshot: mkdir for %s", path)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return cmn.NewServiceError(err, "snapshot: write %s", path)
	}
	return nil
}

func (b *LocalBackend) Get(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(b.BaseDir, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: read %s", path)
	}
	return data, nil
}
