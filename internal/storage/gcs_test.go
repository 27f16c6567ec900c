package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	gcs "cloud.google.com/go/storage"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

// mockGCSClient implements GCSAPI for unit testing.
type mockGCSClient struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	listErr      error
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

type mockGCSWriter struct {
	client      *mockGCSClient
	object      string
	contentType string
	buf         bytes.Buffer
}

func (w *mockGCSWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *mockGCSWriter) Close() error {
	w.client.mu.Lock()
	defer w.client.mu.Unlock()
	w.client.objects[w.object] = w.buf.Bytes()
	w.client.contentTypes[w.object] = w.contentType
	return nil
}

func (m *mockGCSClient) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	return &mockGCSWriter{client: m, object: object, contentType: contentType}
}

func (m *mockGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[object]
	if !ok {
		return nil, gcs.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockGCSClient) Delete(ctx context.Context, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[object]; !ok {
		return gcs.ErrObjectNotExist
	}
	delete(m.objects, object)
	return nil
}

func (m *mockGCSClient) Size(ctx context.Context, bucket, object string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[object]
	if !ok {
		return 0, gcs.ErrObjectNotExist
	}
	return int64(len(data)), nil
}

func (m *mockGCSClient) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) && (limit <= 0 || len(names) < limit) {
			names = append(names, name)
		}
	}
	return names, nil
}

func TestGCSPutAndGetObject(t *testing.T) {
	mock := newMockGCSClient()
	store := NewGCSStoreWithClient("bucket", "project", "pfx/", mock)
	ctx := context.Background()

	n, err := store.PutObject(ctx, "2023/10/cat.webp", writeTempFile(t, "cat.webp", "webp data"))
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if n != int64(len("webp data")) {
		t.Errorf("n = %d", n)
	}
	if _, ok := mock.objects["pfx/2023/10/cat.webp"]; !ok {
		t.Fatalf("missing upstream object, have %v", mock.objects)
	}
	if ct := mock.contentTypes["pfx/2023/10/cat.webp"]; ct != "image/webp" {
		t.Errorf("content type = %q, want image/webp", ct)
	}

	rc, size, err := store.GetObject(ctx, "2023/10/cat.webp")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "webp data" || size != n {
		t.Errorf("got %q (%d bytes)", data, size)
	}
}

func TestGCSGetObjectNotFound(t *testing.T) {
	store := NewGCSStoreWithClient("bucket", "", "", newMockGCSClient())
	if _, _, err := store.GetObject(context.Background(), "x"); !errors.Is(err, offerr.ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestGCSDeleteObjectIdempotent(t *testing.T) {
	store := NewGCSStoreWithClient("bucket", "", "", newMockGCSClient())
	if err := store.DeleteObject(context.Background(), "never-existed"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
}

func TestGCSObjectExists(t *testing.T) {
	store := NewGCSStoreWithClient("bucket", "", "", newMockGCSClient())
	ctx := context.Background()
	if ok, err := store.ObjectExists(ctx, "a.png"); ok || err != nil {
		t.Fatalf("ObjectExists = %v, %v", ok, err)
	}
	if _, err := store.PutObject(ctx, "a.png", writeTempFile(t, "a.png", "x")); err != nil {
		t.Fatal(err)
	}
	if ok, err := store.ObjectExists(ctx, "a.png"); !ok || err != nil {
		t.Fatalf("ObjectExists = %v, %v", ok, err)
	}
}

func TestGCSHealthCheck(t *testing.T) {
	mock := newMockGCSClient()
	store := NewGCSStoreWithClient("bucket", "", "", mock)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	mock.listErr = errors.New("permission denied")
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
