package migration

import (
	"errors"
	"io/fs"
	"os"
)

// RemoveDirIfEmpty removes dir when it has no entries and reports whether it
// did. Errors are ignored and a non-empty directory is never touched.
func RemoveDirIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// removeFile deletes path. A file that is already gone is not an error; the
// boolean reports whether something was removed.
func removeFile(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
