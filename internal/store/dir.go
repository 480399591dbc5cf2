// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.astrophena.name/feederreader/internal/atomicio"
)

// Dir is a directory-backed implementation of the [Store] interface. Each
// key is a file under the base directory; writes are atomic (temp file plus
// rename), so a crash never leaves a half-written value behind.
type Dir struct {
	base string
}

// NewDir creates a new [Dir] rooted at base, creating the directory if
// needed.
func NewDir(base string) (*Dir, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &Dir{base: base}, nil
}

func (d *Dir) path(key string) string {
	return filepath.Join(d.base, filepath.FromSlash(key))
}

// Get retrieves a value for a given key.
func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// Set stores a value for a given key.
func (d *Dir) Set(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	path := d.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomicio.WriteFile(path, value, 0o644)
}

// Delete removes a key, pruning directories left empty.
func (d *Dir) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := atomicio.RemoveIfExists(d.path(key)); err != nil {
		return err
	}
	// Prune empty parents up to the base directory. os.Remove refuses to
	// remove non-empty directories, which is exactly what we want.
	for dir := filepath.Dir(d.path(key)); dir != d.base; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// List returns all keys starting with prefix, sorted.
func (d *Dir) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.base, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		// Skip leftovers of interrupted atomic writes.
		if strings.HasPrefix(filepath.Base(key), ".") {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

// Close closes the store.
func (d *Dir) Close() error { return nil }
