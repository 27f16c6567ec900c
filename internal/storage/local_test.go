package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return s
}

func TestLocalPutGetDelete(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	if _, err := s.PutObject(ctx, "2024/05/a.jpg", writeTempFile(t, "a.jpg", "abc")); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.RootDir, "2024", "05", "a.jpg")); err != nil {
		t.Fatalf("object file missing: %v", err)
	}

	rc, size, err := s.GetObject(ctx, "2024/05/a.jpg")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "abc" || size != 3 {
		t.Errorf("got %q (%d)", data, size)
	}

	if err := s.DeleteObject(ctx, "2024/05/a.jpg"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.RootDir, "2024")); !os.IsNotExist(err) {
		t.Errorf("empty parent directories should be removed, stat err = %v", err)
	}
	if err := s.DeleteObject(ctx, "2024/05/a.jpg"); err != nil {
		t.Errorf("second DeleteObject should succeed: %v", err)
	}
}

func TestLocalGetObjectNotFound(t *testing.T) {
	s := newTestLocalStore(t)
	if _, _, err := s.GetObject(context.Background(), "missing.png"); !errors.Is(err, offerr.ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	s := newTestLocalStore(t)
	src := writeTempFile(t, "x.png", "x")
	for _, key := range []string{"../x.png", "a/../../x.png", "", "/abs/x.png"} {
		if _, err := s.PutObject(context.Background(), key, src); err == nil {
			t.Errorf("PutObject(%q) should fail", key)
		}
	}
}

func TestLocalCleanTempFiles(t *testing.T) {
	s := newTestLocalStore(t)
	stale := filepath.Join(s.RootDir, ".tmp", "tmp-stale")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.CleanTempFiles(); err != nil {
		t.Fatalf("CleanTempFiles: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file should be removed")
	}
}

func TestLocalHealthCheck(t *testing.T) {
	s := newTestLocalStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
