// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"slices"
	"strings"

	"go.astrophena.name/feederreader/internal/syncx"
)

// Mem is an in-memory implementation of the [Store] interface, used in
// tests.
type Mem struct {
	data *syncx.Protected[map[string][]byte]
}

// NewMem creates a new empty [Mem].
func NewMem() *Mem {
	return &Mem{data: syncx.Protect(make(map[string][]byte))}
}

// Get retrieves a value for a given key.
func (m *Mem) Get(_ context.Context, key string) (val []byte, err error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.data.RAccess(func(data map[string][]byte) {
		val = data[key]
	})
	return val, nil
}

// Set stores a value for a given key.
func (m *Mem) Set(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.data.Access(func(data map[string][]byte) {
		data[key] = slices.Clone(value)
	})
	return nil
}

// Delete removes a key.
func (m *Mem) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.data.Access(func(data map[string][]byte) {
		delete(data, key)
	})
	return nil
}

// List returns all keys starting with prefix, sorted.
func (m *Mem) List(_ context.Context, prefix string) (keys []string, err error) {
	m.data.RAccess(func(data map[string][]byte) {
		for key := range data {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	})
	slices.Sort(keys)
	return keys, nil
}

// Close closes the store.
func (m *Mem) Close() error { return nil }
