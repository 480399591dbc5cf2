// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a key-value store backed by a directory of plain
// files, in-memory or by SQLite.
//
// Keys are slash-separated paths like "20240105/10/items.json". The directory
// backend maps them directly to files, so anything else (a renderer, a shell
// one-liner) can read the stored JSON without going through this package.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrBadKey is returned for keys that are empty or try to escape the store's
// namespace.
var ErrBadKey = errors.New("bad key")

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys starting with prefix, sorted. An empty prefix
	// lists the whole store.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close closes the store and releases any resources.
	Close() error
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return ErrBadKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrBadKey
		}
	}
	return nil
}
