// Package asset resolves catalog records into concrete files on disk and
// their object keys, and discovers assets under the local asset root.
package asset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mediaoffload/offloader/internal/catalog"
	offerr "github.com/mediaoffload/offloader/internal/errors"
)

// File is one physical file of an asset group.
type File struct {
	// Path is the absolute local path.
	Path string `json:"path"`
	// Key is the object key: the path relative to the asset root, with
	// forward slashes.
	Key string `json:"key"`
	// Variant is the size name, empty for the primary file.
	Variant string `json:"variant,omitempty"`
}

// Group is an asset's primary file plus its derived variants.
type Group struct {
	Asset    *catalog.Asset `json:"-"`
	Primary  File           `json:"primary"`
	Variants []File         `json:"variants"`
}

// Files returns the primary followed by every variant.
func (g *Group) Files() []File {
	out := make([]File, 0, 1+len(g.Variants))
	out = append(out, g.Primary)
	return append(out, g.Variants...)
}

// Resolver maps catalog records to file groups. It has no side effects.
type Resolver struct {
	root    string
	catalog catalog.Store
}

// NewResolver creates a Resolver for assets stored under root.
func NewResolver(root string, store catalog.Store) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving asset root %q: %w", root, err)
	}
	return &Resolver{root: abs, catalog: store}, nil
}

// Root returns the absolute asset root.
func (r *Resolver) Root() string { return r.root }

// Resolve loads the asset and builds its group.
func (r *Resolver) Resolve(ctx context.Context, id int64) (*Group, error) {
	a, err := r.catalog.GetAsset(ctx, id)
	if err != nil {
		return nil, offerr.ErrCatalogUnavailable.Wrap(err)
	}
	if a == nil {
		return nil, offerr.ErrAssetNotFound.WithMessage("asset %d not found", id)
	}
	return r.Group(a)
}

// Group builds the file group of an already-loaded asset.
func (r *Resolver) Group(a *catalog.Asset) (*Group, error) {
	if a.PrimaryPath == "" {
		return nil, offerr.ErrNoPrimaryFile.WithMessage("asset %d has no primary file", a.ID)
	}

	primary, err := r.file(a.PrimaryPath, "")
	if err != nil {
		return nil, fmt.Errorf("asset %d: %w", a.ID, err)
	}
	g := &Group{Asset: a, Primary: primary}

	dir := filepath.Dir(filepath.FromSlash(a.PrimaryPath))
	seen := map[string]bool{primary.Key: true}
	for _, v := range a.Variants {
		if v.File == "" {
			continue
		}
		if strings.ContainsAny(v.File, `/\`) {
			return nil, fmt.Errorf("asset %d: variant %q must be a base name", a.ID, v.File)
		}
		f, err := r.file(filepath.Join(dir, v.File), v.Name)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", a.ID, err)
		}
		if seen[f.Key] {
			continue
		}
		seen[f.Key] = true
		g.Variants = append(g.Variants, f)
	}
	return g, nil
}

// file builds a File for a root-relative path.
func (r *Resolver) file(rel, variant string) (File, error) {
	key, err := Key(rel)
	if err != nil {
		return File{}, err
	}
	return File{
		Path:    filepath.Join(r.root, filepath.FromSlash(key)),
		Key:     key,
		Variant: variant,
	}, nil
}

// Key normalizes a root-relative path into an object key. Absolute paths and
// paths that escape the root are rejected.
func Key(rel string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	if rel == "" || clean == "." || strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q is outside the asset root", rel)
	}
	return clean, nil
}

// RelPath converts an absolute path under root into a root-relative key.
func RelPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("path %q is outside the asset root: %w", path, err)
	}
	return Key(rel)
}
