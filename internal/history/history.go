// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package history implements the append-only, hour-partitioned archive of
// feed records.
//
// Records land in the partition for the hour they were ingested, one
// storage key per partition ("YYYYMMDD/HH/items.json", a JSON array of
// records in append order). Appends dedup against the target partition by
// identity tuple, so re-reading a feed is idempotent. Partitions are only
// ever removed whole, by [Store.Sweep].
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"sync"
	"time"

	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/store"
)

// partitionFile is the name of the record file within a partition's
// directory. The enclosing path is the partition key itself.
const partitionFile = "items.json"

// Key identifies one partition: an ingestion instant truncated to the hour,
// rendered as "YYYYMMDD/HH" in UTC. Keys compare chronologically as plain
// strings.
type Key string

// KeyFor returns the partition key for time t.
func KeyFor(t time.Time) Key {
	return Key(t.UTC().Format("20060102/15"))
}

// day returns the date portion of the key.
func (k Key) day() string { return string(k[:8]) }

var keyRe = regexp.MustCompile(`^\d{8}/\d{2}/items\.json$`)

// Store is the history store. KV, the backing key-value store, is required;
// Logf and Now default to silence and [time.Now].
type Store struct {
	KV   store.Store
	Logf logger.Logf
	Now  func() time.Time

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// New returns a history store backed by kv.
func New(kv store.Store) *Store {
	return &Store{
		KV:    kv,
		Logf:  logger.Discard(),
		Now:   time.Now,
		locks: make(map[Key]*sync.Mutex),
	}
}

// lock returns the mutex guarding the given partition. Only appends for the
// same hour contend, so per-partition locking is all the dedup invariant
// needs.
func (s *Store) lock(k Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[k]
	if !ok {
		m = new(sync.Mutex)
		s.locks[k] = m
	}
	return m
}

func (k Key) storageKey() string { return string(k) + "/" + partitionFile }

func (s *Store) readPartition(ctx context.Context, k Key) ([]model.ItemRecord, error) {
	b, err := s.KV.Get(ctx, k.storageKey())
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", k, err)
	}
	if b == nil {
		// A missing partition reads as empty. Sweep may have raced us.
		return nil, nil
	}
	var recs []model.ItemRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("partition %s: %w", k, err)
	}
	return recs, nil
}

func (s *Store) writePartition(ctx context.Context, k Key, recs []model.ItemRecord) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("partition %s: %w", k, err)
	}
	if err := s.KV.Set(ctx, k.storageKey(), b); err != nil {
		return fmt.Errorf("partition %s: %w", k, err)
	}
	return nil
}

// Append adds rec to the partition for the current hour, unless a record
// with an equal identity tuple is already there. It reports whether the
// record was inserted; false means it was a duplicate. Append is idempotent
// and safe for concurrent use.
func (s *Store) Append(ctx context.Context, rec model.ItemRecord) (inserted bool, err error) {
	k := KeyFor(s.Now())

	mu := s.lock(k)
	mu.Lock()
	defer mu.Unlock()

	recs, err := s.readPartition(ctx, k)
	if err != nil {
		return false, err
	}
	key := rec.Key()
	for _, existing := range recs {
		if existing.Key() == key {
			return false, nil
		}
	}
	if err := s.writePartition(ctx, k, append(recs, rec)); err != nil {
		return false, err
	}
	s.Logf("history: %s appended to %s", rec.Item.Title, k)
	return true, nil
}

// Partitions returns the keys of all partitions currently present, in
// chronological order.
func (s *Store) Partitions(ctx context.Context) ([]Key, error) {
	keys, err := s.KV.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var parts []Key
	for _, key := range keys {
		if keyRe.MatchString(key) {
			parts = append(parts, Key(key[:len(key)-len(partitionFile)-1]))
		}
	}
	return parts, nil
}

// Scan yields all records in partitions strictly newer than after, in
// partition order and then in append order within each partition. A zero
// after scans the whole store. Each scan starts fresh from the requested
// boundary.
func (s *Store) Scan(ctx context.Context, after Key) iter.Seq2[model.ItemRecord, error] {
	return func(yield func(model.ItemRecord, error) bool) {
		parts, err := s.Partitions(ctx)
		if err != nil {
			yield(model.ItemRecord{}, err)
			return
		}
		for _, k := range parts {
			if after != "" && k <= after {
				continue
			}
			recs, err := s.readPartition(ctx, k)
			if err != nil {
				yield(model.ItemRecord{}, err)
				return
			}
			for _, rec := range recs {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// DeletePartition removes a partition entirely. Deleting an absent
// partition is a no-op, to tolerate concurrent cleanup.
func (s *Store) DeletePartition(ctx context.Context, k Key) error {
	if err := s.KV.Delete(ctx, k.storageKey()); err != nil {
		return fmt.Errorf("partition %s: %w", k, err)
	}
	return nil
}

// Sweep deletes every partition whose day is strictly older than now minus
// maxAgeDays and reports how many were deleted. With maxAgeDays >= 1 the
// current hour's partition is never a target, so sweeping is safe alongside
// ongoing ingestion.
func (s *Store) Sweep(ctx context.Context, now time.Time, maxAgeDays int) (deleted int, err error) {
	cutoff := now.UTC().AddDate(0, 0, -maxAgeDays).Format("20060102")

	parts, err := s.Partitions(ctx)
	if err != nil {
		return 0, err
	}
	for _, k := range parts {
		if k.day() >= cutoff {
			continue
		}
		if err := s.DeletePartition(ctx, k); err != nil {
			return deleted, err
		}
		s.Logf("history: removed partition %s", k)
		deleted++
	}
	return deleted, nil
}
