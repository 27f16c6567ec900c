package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSAPI defines the subset of the GCS client interface that GCSStore uses.
// This allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given GCS object.
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	// NewReader returns a reader for the given GCS object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// Delete deletes the given GCS object.
	Delete(ctx context.Context, bucket, object string) error
	// Size returns the size of the given GCS object.
	Size(ctx context.Context, bucket, object string) (int64, error)
	// ListObjects lists up to limit object names with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error)
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Size(ctx context.Context, bucket, object string) (int64, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var names []string
	for limit <= 0 || len(names) < limit {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// GCSStore implements ObjectStore against Google Cloud Storage.
//
// Key mapping:
//
//	Objects:  {prefix}{key}
//
// Credentials are resolved via Application Default Credentials.
type GCSStore struct {
	Bucket  string
	Project string
	Prefix  string
	client  GCSAPI
}

// NewGCSStore creates a GCSStore and verifies the bucket is reachable.
func NewGCSStore(ctx context.Context, bucket, project, prefix string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := NewGCSStoreWithClient(bucket, project, prefix, &realGCSClient{client: client})
	if err := s.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("cannot access GCS bucket %q: %w", bucket, err)
	}

	slog.Info("GCS object store initialized", "bucket", bucket, "project", project, "prefix", prefix)
	return s, nil
}

// NewGCSStoreWithClient creates a GCSStore with a pre-configured client.
func NewGCSStoreWithClient(bucket, project, prefix string, client GCSAPI) *GCSStore {
	return &GCSStore{
		Bucket:  bucket,
		Project: project,
		Prefix:  prefix,
		client:  client,
	}
}

func (s *GCSStore) gcsKey(key string) string {
	return s.Prefix + key
}

// PutObject streams the local file into a GCS object.
func (s *GCSStore) PutObject(ctx context.Context, key, localPath string) (int64, error) {
	f, _, err := openUpload(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := s.client.NewWriter(ctx, s.Bucket, s.gcsKey(key), ContentType(localPath))
	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("uploading %q to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finalizing GCS upload of %q: %w", key, err)
	}
	return n, nil
}

// GetObject retrieves object data from GCS.
func (s *GCSStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	name := s.gcsKey(key)

	size, err := s.client.Size(ctx, s.Bucket, name)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, 0, notFound(key)
		}
		return nil, 0, fmt.Errorf("getting attrs of %q from GCS: %w", key, err)
	}

	reader, err := s.client.NewReader(ctx, s.Bucket, name)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, 0, notFound(key)
		}
		return nil, 0, fmt.Errorf("getting %q from GCS: %w", key, err)
	}
	return reader, size, nil
}

// DeleteObject removes an object from GCS.
// Idempotent: a 404 is treated as success.
func (s *GCSStore) DeleteObject(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, s.Bucket, s.gcsKey(key)); err != nil {
		if isGCSNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting %q from GCS: %w", key, err)
	}
	return nil
}

// ObjectExists checks whether an object exists in GCS.
func (s *GCSStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.Size(ctx, s.Bucket, s.gcsKey(key)); err != nil {
		if isGCSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %q in GCS: %w", key, err)
	}
	return true, nil
}

// HealthCheck lists at most one object to verify the bucket is accessible.
func (s *GCSStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.ListObjects(ctx, s.Bucket, s.Prefix, 1)
	return err
}

// isGCSNotFound checks if a GCS error is a 404/not-found error.
func isGCSNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "404") {
			return true
		}
	}
	return false
}

var _ ObjectStore = (*GCSStore)(nil)
