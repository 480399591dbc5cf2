// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package filter derives the set of watched-docket records from the history
// store.
//
// The filter set ("filter.json") is the cumulative, never-pruned record of
// every match found so far. It doubles as the notification boundary: a run
// returns exactly the records it added, and a record already in the set is
// never returned again. The set outlives swept history partitions on
// purpose.
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.astrophena.name/feederreader/internal/history"
	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/store"
)

const (
	setKey    = "filter.json"
	cursorKey = "cursor.json"
)

// Filter scans the history store for records whose docket matches a
// watch-list entry. History and KV are required; Logf and Now have usable
// defaults.
type Filter struct {
	History *history.Store
	KV      store.Store
	Logf    logger.Logf
	Now     func() time.Time
}

// New returns a Filter reading from h and keeping its state in kv.
func New(h *history.Store, kv store.Store) *Filter {
	return &Filter{
		History: h,
		KV:      kv,
		Logf:    logger.Discard(),
		Now:     time.Now,
	}
}

// Set returns the current filter set, in the order matches were found.
func (f *Filter) Set(ctx context.Context) ([]model.ItemRecord, error) {
	b, err := f.KV.Get(ctx, setKey)
	if err != nil {
		return nil, fmt.Errorf("filter set: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	var recs []model.ItemRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("filter set: %w", err)
	}
	return recs, nil
}

type cursor struct {
	After history.Key `json:"after"`
}

func (f *Filter) loadCursor(ctx context.Context) (history.Key, error) {
	b, err := f.KV.Get(ctx, cursorKey)
	if err != nil || b == nil {
		return "", err
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil {
		// A mangled cursor only costs a full rescan; dedup keeps that safe.
		f.Logf("filter: ignoring bad cursor: %v", err)
		return "", nil
	}
	return c.After, nil
}

func (f *Filter) saveCursor(ctx context.Context, after history.Key) error {
	b, err := json.Marshal(cursor{After: after})
	if err != nil {
		return err
	}
	return f.KV.Set(ctx, cursorKey, b)
}

// matches reports whether the docket contains any of the watch entries,
// which must already be lowercase. A watch entry "16-cv-07161" matches the
// docket "2:16-cv-07161-PKC" — exact matching would silently miss court
// prefixes and judge suffixes.
func matches(docket string, watch []string) bool {
	docket = strings.ToLower(docket)
	for _, w := range watch {
		if strings.Contains(docket, w) {
			return true
		}
	}
	return false
}

// Run scans history partitions newer than the persisted cursor, extends the
// filter set with records whose docket matches an entry of watch, and
// returns exactly the records added by this run, in scan order. An empty
// result means nothing new; an empty watch list is valid and matches
// nothing. Re-running without new history writes returns nothing, so the
// result can directly drive notification.
func (f *Filter) Run(ctx context.Context, watch []string) ([]model.ItemRecord, error) {
	targets := make([]string, 0, len(watch))
	for _, w := range watch {
		targets = append(targets, strings.ToLower(w))
	}

	set, err := f.Set(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[model.Key]bool, len(set))
	for _, rec := range set {
		seen[rec.Key()] = true
	}

	after, err := f.loadCursor(ctx)
	if err != nil {
		return nil, err
	}

	var newMatches []model.ItemRecord
	for rec, err := range f.History.Scan(ctx, after) {
		if err != nil {
			return nil, err
		}
		if !rec.Item.HasDocket() || !matches(rec.Item.Docket, targets) {
			continue
		}
		if seen[rec.Key()] {
			continue
		}
		seen[rec.Key()] = true
		newMatches = append(newMatches, rec)
	}

	if len(newMatches) > 0 {
		b, err := json.MarshalIndent(append(set, newMatches...), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("filter set: %w", err)
		}
		if err := f.KV.Set(ctx, setKey, b); err != nil {
			return nil, fmt.Errorf("filter set: %w", err)
		}
	}

	// Advance the cursor to the newest partition that can't grow anymore.
	// The current hour's partition may still receive appends, so it stays
	// before the cursor and gets rescanned next run; identity dedup makes
	// that harmless.
	// The cursor only trims the next scan: losing a save costs a rescan,
	// while failing the run here would drop matches that are already
	// committed to the set and will never resurface.
	if next := f.completedBoundary(ctx); next > after {
		if err := f.saveCursor(ctx, next); err != nil {
			f.Logf("filter: saving cursor: %v", err)
		}
	}

	f.Logf("filter: %d new matches (set size %d)", len(newMatches), len(set)+len(newMatches))
	return newMatches, nil
}

func (f *Filter) completedBoundary(ctx context.Context) history.Key {
	parts, err := f.History.Partitions(ctx)
	if err != nil {
		return ""
	}
	current := history.KeyFor(f.Now())
	var last history.Key
	for _, k := range parts {
		if k < current {
			last = k
		}
	}
	return last
}
