package snapshot

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/vecstore/vecstore/cmn"
)

// AzureBackend stores archives as blobs in one Azure Blob Storage
// container, grounded on the teacher's own azcore/azblob dependency.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

func NewAzureBackend(accountURL string, cred azcore.TokenCredential, container string) (*AzureBackend, error) {
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: build azure client")
	}
	return &AzureBackend{client: client, container: container}, nil
}

func (b *AzureBackend) Put(ctx context.Context, path string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, path, data, nil)
	if err != nil {
		return cmn.NewServiceError(err, "snapshot: azure upload %s", path)
	}
	return nil
}

func (b *AzureBackend) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, path, nil)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: azure download %s", path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cmn.NewServiceError(err, "snapshot: azure read body %s", path)
	}
	return data, nil
}
