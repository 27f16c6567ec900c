package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.jpg":                  "image/jpeg",
		"b.PNG":                  "image/png",
		"c.webp":                 "image/webp",
		"d.pdf":                  "application/pdf",
		"noext":                  "application/octet-stream",
		"weird.offloaderunknown": "application/octet-stream",
	}
	for in, want := range tests {
		if got := ContentType(in); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDownloadAtomic(t *testing.T) {
	mem := NewMemoryStore(0)
	if _, err := mem.Put("2024/05/a.jpg", []byte("remote")); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "uploads", "2024", "05", "a.jpg")

	n, err := Download(context.Background(), mem, "2024/05/a.jpg", dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 6 {
		t.Errorf("n = %d, want 6", n)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "remote" {
		t.Fatalf("dest = %q, %v", data, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Errorf("expected only the final file, found %d entries", len(entries))
	}
}

func TestDownloadMissingLeavesDestUntouched(t *testing.T) {
	mem := NewMemoryStore(0)
	dest := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(dest, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Download(context.Background(), mem, "a.jpg", dest); !errors.Is(err, offerr.ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "local" {
		t.Errorf("dest was modified: %q", data)
	}
}

func TestMemoryStoreLimit(t *testing.T) {
	mem := NewMemoryStore(4)
	if _, err := mem.Put("a", []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Put("b", []byte("de")); err == nil {
		t.Fatal("expected store-full error")
	}
	// Overwriting an existing key only counts the delta.
	if _, err := mem.Put("a", []byte("abcd")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if mem.Size() != 4 {
		t.Errorf("Size = %d, want 4", mem.Size())
	}
	if err := mem.DeleteObject(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if mem.Size() != 0 || len(mem.Keys()) != 0 {
		t.Errorf("store not empty after delete: %v", mem.Keys())
	}
}

func TestCleanPartialDownloads(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "2024", "photo.jpg")
	stale := filepath.Join(root, "2024", ".photo.jpg.tmp-abc123")
	fresh := filepath.Join(root, "2024", ".other.jpg.tmp-def456")
	hidden := filepath.Join(root, ".htaccess")
	for _, p := range []string{keep, stale, fresh, hidden} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	n, err := CleanPartialDownloads(root, time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("CleanPartialDownloads = %d, %v; want 1, nil", n, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale partial download not removed")
	}
	for _, p := range []string{keep, fresh, hidden} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed: %v", p, err)
		}
	}

	if n, err := CleanPartialDownloads(filepath.Join(root, "missing"), time.Hour); err != nil || n != 0 {
		t.Errorf("missing root = %d, %v", n, err)
	}
}

func TestCleanPartialDownloadsKeepsInFlightDownload(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "2024", "a.jpg")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := writeFileAtomic(dest, pr)
		done <- err
	}()
	if _, err := pw.Write([]byte("first half ")); err != nil {
		t.Fatal(err)
	}

	n, err := CleanPartialDownloads(root, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("CleanPartialDownloads during download = %d, %v; want 0, nil", n, err)
	}

	pw.Write([]byte("second half"))
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("in-flight download failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "first half second half" {
		t.Errorf("dest = %q, %v", data, err)
	}
}
