package snapshot

import (
	"context"
	"io"

	"cloud.google.com/go/storage"

	"github.com/vecstore/vecstore/cmn"
)

// GCSBackend stores archives as objects in one Google Cloud Storage
// bucket, grounded on the teacher's own cloud.google.com/go/storage
// dependency.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: build gcs client")
	}
	return &GCSBackend{client: client, bucket: bucket}, nil
}

func (b *GCSBackend) Put(ctx context.Context, path string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(path).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return cmn.NewServiceError(err, "snapshot: gcs write %s", path)
	}
	if err := w.Close(); err != nil {
		return cmn.NewServiceError(err, "snapshot: gcs close %s", path)
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: gcs open %s", path)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: gcs read %s", path)
	}
	return data, nil
}
