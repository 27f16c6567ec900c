// Package storage defines the object store interface and its implementations.
// Keys are asset paths relative to the local asset root, using forward
// slashes; each backend maps them to its own namespace.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/uid"
)

// ObjectStore is the remote object store the migration engine talks to.
// All methods must be safe for concurrent use.
type ObjectStore interface {
	// PutObject uploads the file at localPath under key, overwriting any
	// existing object. It returns the number of bytes uploaded.
	PutObject(ctx context.Context, key, localPath string) (int64, error)

	// GetObject opens the object at key for reading. The caller must close the
	// returned ReadCloser. A missing key yields an error matching
	// errors.ErrObjectNotFound.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// DeleteObject removes the object at key. Deleting a missing key succeeds.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists reports whether an object exists at key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// HealthCheck verifies that the store is reachable.
	HealthCheck(ctx context.Context) error
}

// ContentType guesses a MIME type from the file extension.
func ContentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// openUpload opens localPath for upload and returns the file and its size.
func openUpload(localPath string) (*os.File, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %q for upload: %w", localPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %q: %w", localPath, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%q is a directory", localPath)
	}
	return f, info.Size(), nil
}

// notFound returns an ErrObjectNotFound naming key.
func notFound(key string) error {
	return offerr.ErrObjectNotFound.WithMessage("object not found: %s", key)
}

// Download copies the object at key to dest using the crash-only atomic
// write pattern: write to a temp file beside dest, fsync, rename. Parent
// directories are created as needed. A partial download never replaces dest.
func Download(ctx context.Context, store ObjectStore, key, dest string) (int64, error) {
	body, _, err := store.GetObject(ctx, key)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return writeFileAtomic(dest, body)
}

func writeFileAtomic(dest string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directories for %q: %w", dest, err)
	}

	tmpPath := filepath.Join(dir, "."+filepath.Base(dest)+".tmp-"+uid.New())
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	n, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing %q: %w", dest, err)
	}

	// Fsync before rename to guarantee durability.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file to %q: %w", dest, err)
	}
	return n, nil
}

// CleanPartialDownloads removes temp files left under root by downloads that
// never reached the rename. Only files not modified within minAge are removed,
// so a download still writing in another process keeps its temp file. It
// returns how many were removed.
func CleanPartialDownloads(root string, minAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-minAge)
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		name := d.Name()
		if !d.Type().IsRegular() || !strings.HasPrefix(name, ".") || !strings.Contains(name, ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})
	return removed, err
}
