package asset

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mediaoffload/offloader/internal/catalog"
	"github.com/mediaoffload/offloader/internal/storage"
)

// variantPattern matches derived size names such as photo-300x200.jpg.
var variantPattern = regexp.MustCompile(`^(.+)-(\d+)x(\d+)(\.[^.]+)$`)

// Scanner discovers assets under the asset root.
type Scanner struct {
	Root string
}

// Scan walks the root and groups files into assets. A file named
// name-WxH.ext is a variant of name.ext in the same directory when that file
// exists; every other regular file is a primary. Hidden entries are skipped.
// The returned assets have ID 0 and are ordered by primary path.
func (s *Scanner) Scan(ctx context.Context) ([]catalog.Asset, error) {
	byDir := make(map[string][]string)
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != s.Root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			dir := filepath.Dir(path)
			byDir[dir] = append(byDir[dir], d.Name())
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var assets []catalog.Asset
	for dir, names := range byDir {
		present := make(map[string]bool, len(names))
		for _, n := range names {
			present[n] = true
		}

		variants := make(map[string][]catalog.Variant)
		var primaries []string
		for _, n := range names {
			if parent := parentOf(n, present); parent != "" {
				m := variantPattern.FindStringSubmatch(n)
				w, _ := strconv.Atoi(m[2])
				h, _ := strconv.Atoi(m[3])
				stem := strings.TrimSuffix(parent, m[4])
				variants[parent] = append(variants[parent], catalog.Variant{
					Name:     strings.TrimSuffix(n, m[4])[len(stem)+1:],
					File:     n,
					Width:    w,
					Height:   h,
					MimeType: storage.ContentType(n),
				})
				continue
			}
			primaries = append(primaries, n)
		}

		for _, p := range primaries {
			key, err := RelPath(s.Root, filepath.Join(dir, p))
			if err != nil {
				return nil, err
			}
			vs := variants[p]
			sort.Slice(vs, func(i, j int) bool { return vs[i].File < vs[j].File })
			assets = append(assets, catalog.Asset{PrimaryPath: key, Variants: vs})
		}
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].PrimaryPath < assets[j].PrimaryPath })
	return assets, nil
}

// parentOf returns the primary file a variant belongs to, following variants
// of variants ("a-1x1-2x2.jpg" -> "a-1x1.jpg" -> "a.jpg") up to the first name
// that is not itself a variant. It returns "" for primaries.
func parentOf(name string, present map[string]bool) string {
	parent := ""
	for {
		m := variantPattern.FindStringSubmatch(name)
		if m == nil || !present[m[1]+m[4]] {
			return parent
		}
		name = m[1] + m[4]
		parent = name
	}
}

// ScanResult summarizes an Import.
type ScanResult struct {
	Found    int `json:"found"`
	Imported int `json:"imported"`
	Existing int `json:"existing"`
	// WouldImport counts the new assets a dry run found but did not write.
	WouldImport int `json:"would_import,omitempty"`
}

// Import scans the root and registers every asset whose primary path is not
// already in the catalog. With dryRun nothing is written.
func (s *Scanner) Import(ctx context.Context, store catalog.Store, dryRun bool) (*ScanResult, error) {
	found, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	res := &ScanResult{Found: len(found)}
	for i := range found {
		existing, err := store.FindAssetByPath(ctx, found[i].PrimaryPath)
		if err != nil {
			return res, err
		}
		if existing != nil {
			res.Existing++
			continue
		}
		if dryRun {
			res.WouldImport++
			continue
		}
		if err := store.PutAsset(ctx, &found[i]); err != nil {
			return res, err
		}
		res.Imported++
	}
	return res, nil
}
