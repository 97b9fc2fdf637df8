package destination

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/rescale/rescale-qr/internal/config"
	"github.com/rescale/rescale-qr/internal/http"
)

// BlobAPI is the subset of the azblob client used by AzureStore.
type BlobAPI interface {
	UploadStream(ctx context.Context, containerName string, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
}

// AzureStore writes instances as block blobs in one container.
type AzureStore struct {
	client    BlobAPI
	account   string
	container string
}

// NewAzure builds an Azure store. cfg.AzureAccountURL carries the SAS token,
// e.g. https://{account}.blob.core.windows.net/?{sas}.
func NewAzure(cfg *config.Config) (*AzureStore, error) {
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	client, err := azblob.NewClientWithNoCredential(cfg.AzureAccountURL, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	account := cfg.AzureAccountURL
	if u, err := url.Parse(cfg.AzureAccountURL); err == nil {
		account = u.Host // Never echo the SAS query
	}
	return &AzureStore{client: client, account: account, container: cfg.AzureContainer}, nil
}

// NewAzureWithClient wraps an existing client.
func NewAzureWithClient(client BlobAPI, account, container string) *AzureStore {
	return &AzureStore{client: client, account: account, container: container}
}

// Put streams r into a block blob named key.
func (a *AzureStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	contentType := "application/dicom"
	_, err = a.client.UploadStream(ctx, a.container, key, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to azure container %s: %w", key, a.container, err)
	}
	return nil
}

// Describe returns "azure://account/container".
func (a *AzureStore) Describe() string {
	return "azure://" + a.account + "/" + a.container
}
