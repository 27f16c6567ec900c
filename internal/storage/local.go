package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediaoffload/offloader/internal/uid"
)

// LocalStore implements ObjectStore on a local directory. It is meant for
// development and for mirroring into a mounted volume.
type LocalStore struct {
	// RootDir is the base directory under which objects are stored by key.
	RootDir string
}

// NewLocalStore creates a LocalStore rooted at the given directory. It
// creates the root and its .tmp directory if they do not exist.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(rootDir, ".tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("creating object store directory %q: %w", rootDir, err)
	}
	return &LocalStore{RootDir: rootDir}, nil
}

// CleanTempFiles removes all files in the .tmp directory. Any temp files left
// behind indicate incomplete writes from a previous crash.
func (s *LocalStore) CleanTempFiles() error {
	tmpDir := filepath.Join(s.RootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// objectPath returns the filesystem path for key, refusing keys that would
// escape the root.
func (s *LocalStore) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.RootDir, clean), nil
}

// PutObject copies the local file into the store using temp file, fsync, rename.
func (s *LocalStore) PutObject(ctx context.Context, key, localPath string) (int64, error) {
	dest, err := s.objectPath(key)
	if err != nil {
		return 0, err
	}
	f, _, err := openUpload(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directories for %q: %w", key, err)
	}

	tmpPath := filepath.Join(s.RootDir, ".tmp", "tmp-"+uid.New())
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	n, err := io.Copy(tmpFile, f)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing object data: %w", err)
	}
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
		return 0, fmt.Errorf("renaming temp file to final path: %w", err)
	}
	return n, nil
}

// GetObject opens the object file for reading.
func (s *LocalStore) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, notFound(key)
		}
		return nil, 0, fmt.Errorf("opening object %q: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat object %q: %w", key, err)
	}
	return file, info.Size(), nil
}

// DeleteObject removes the object file, then any parent directories left
// empty below the root. Idempotent.
func (s *LocalStore) DeleteObject(ctx context.Context, key string) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object %q: %w", key, err)
	}

	root := filepath.Clean(s.RootDir)
	for dir := filepath.Dir(path); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// ObjectExists reports whether the object file exists.
func (s *LocalStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %q: %w", key, err)
	}
	return !info.IsDir(), nil
}

// HealthCheck verifies that the root directory is writable.
func (s *LocalStore) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(s.RootDir, ".tmp", ".health-"+uid.New())
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("object store root not writable: %w", err)
	}
	return os.Remove(probe)
}

var _ ObjectStore = (*LocalStore)(nil)
