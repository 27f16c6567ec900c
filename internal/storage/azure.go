package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that AzureStore uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// UploadBlob uploads a block blob, overwriting if it already exists.
	UploadBlob(ctx context.Context, containerName, blobName string, body io.ReadSeeker, contentType string) error
	// DownloadBlob opens a blob for reading and returns its size.
	DownloadBlob(ctx context.Context, containerName, blobName string) (io.ReadCloser, int64, error)
	// DeleteBlob deletes a blob. Returns an error if the blob does not exist.
	DeleteBlob(ctx context.Context, containerName, blobName string) error
	// BlobExists checks if a blob exists.
	BlobExists(ctx context.Context, containerName, blobName string) (bool, error)
}

// AzureStore implements ObjectStore against an Azure Blob Storage container.
//
// Key mapping:
//
//	Objects:  {prefix}{key}
type AzureStore struct {
	Container  string
	AccountURL string
	Prefix     string
	client     AzureBlobAPI
}

// AzureOptions configures an AzureStore.
type AzureOptions struct {
	Container          string
	AccountURL         string
	ConnectionString   string
	UseManagedIdentity bool
	Prefix             string
}

// NewAzureStore creates an AzureStore and verifies the container is reachable.
func NewAzureStore(ctx context.Context, opts AzureOptions) (*AzureStore, error) {
	client, err := newRealAzureClient(opts.AccountURL, opts.ConnectionString, opts.UseManagedIdentity)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}

	s := NewAzureStoreWithClient(opts.Container, opts.AccountURL, opts.Prefix, client)
	if err := s.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("cannot access Azure container %q: %w", opts.Container, err)
	}

	slog.Info("Azure object store initialized", "container", opts.Container, "account", opts.AccountURL, "prefix", opts.Prefix)
	return s, nil
}

// NewAzureStoreWithClient creates an AzureStore with a pre-configured client.
func NewAzureStoreWithClient(container, accountURL, prefix string, client AzureBlobAPI) *AzureStore {
	return &AzureStore{
		Container:  container,
		AccountURL: accountURL,
		Prefix:     prefix,
		client:     client,
	}
}

func (s *AzureStore) blobName(key string) string {
	return s.Prefix + key
}

// PutObject uploads the local file as a block blob.
func (s *AzureStore) PutObject(ctx context.Context, key, localPath string) (int64, error) {
	f, size, err := openUpload(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := s.client.UploadBlob(ctx, s.Container, s.blobName(key), f, ContentType(localPath)); err != nil {
		return 0, fmt.Errorf("uploading %q to Azure Blob: %w", key, err)
	}
	return size, nil
}

// GetObject retrieves blob data.
func (s *AzureStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	body, size, err := s.client.DownloadBlob(ctx, s.Container, s.blobName(key))
	if err != nil {
		if isAzureNotFound(err) {
			return nil, 0, notFound(key)
		}
		return nil, 0, fmt.Errorf("getting %q from Azure Blob: %w", key, err)
	}
	return body, size, nil
}

// DeleteObject removes a blob. Idempotent: a missing blob is treated as success.
func (s *AzureStore) DeleteObject(ctx context.Context, key string) error {
	if err := s.client.DeleteBlob(ctx, s.Container, s.blobName(key)); err != nil {
		if isAzureNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting %q from Azure Blob: %w", key, err)
	}
	return nil
}

// ObjectExists checks whether a blob exists.
func (s *AzureStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.BlobExists(ctx, s.Container, s.blobName(key))
	if err != nil {
		return false, fmt.Errorf("checking %q in Azure Blob: %w", key, err)
	}
	return exists, nil
}

// HealthCheck verifies that the container is accessible by probing a blob
// that cannot exist.
func (s *AzureStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.BlobExists(ctx, s.Container, "\x00nonexistent\x00")
	return err
}

var _ ObjectStore = (*AzureStore)(nil)
