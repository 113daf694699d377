package snapshot

import (
	"context"
	"io"
	"path/filepath"

	"github.com/colinmarc/hdfs/v2"

	"github.com/vecstore/vecstore/cmn"
)

// HDFSBackend stores archives under a base directory in an HDFS
// cluster, grounded on the teacher's own colinmarc/hdfs dependency.
type HDFSBackend struct {
	client  *hdfs.Client
	baseDir string
}

func NewHDFSBackend(namenodeAddr, baseDir string) (*HDFSBackend, error) {
	client, err := hdfs.New(namenodeAddr)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: connect to hdfs namenode")
	}
	return &HDFSBackend{client: client, baseDir: baseDir}, nil
}

func (b *HDFSBackend) Put(_ context.Context, path string, data []byte) error {
	full := filepath.Join(b.baseDir, path)
	if err := b.client.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return cmn.NewServiceError(err, "snapshot: hdfs mkdir for %s", path)
	}
	w, err := b.client.Create(full)
	if err != nil {
		return cmn.NewServiceError(err, "snapshot: hdfs create %s", path)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return cmn.NewServiceError(err, "snapshot: hdfs write %s", path)
	}
	if err := w.Close(); err != nil {
		return cmn.NewServiceError(err, "snapshot: hdfs close %s", path)
	}
	return nil
}

func (b *HDFSBackend) Get(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(b.baseDir, path)
	r, err := b.client.Open(full)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: hdfs open %s", path)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: hdfs read %s", path)
	}
	return data, nil
}
