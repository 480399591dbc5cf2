// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package reader fetches RSS feeds and ingests their entries into the
// history store.
//
// Court feeds only carry the previous 24 hours of filings, so the reader
// should run at least once a day. Everything it does is idempotent: the
// history store's dedup makes re-reading a feed harmless.
package reader

import (
	"context"
	"fmt"
	"net/http"

	"go.astrophena.name/feederreader/internal/history"
	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/request"
	"go.astrophena.name/feederreader/internal/syncx"
	"go.astrophena.name/feederreader/internal/version"

	"github.com/mmcdole/gofeed"
)

// RawItem is one feed entry as delivered by the fetcher, before any
// parsing or docket extraction.
type RawItem struct {
	Title       string
	Link        string
	Description string
	PubDate     string
}

// Skip describes one raw item that failed extraction and was left out of
// the archive.
type Skip struct {
	Title  string
	Reason string
}

// Report accumulates the outcome of one ingestion run.
type Report struct {
	Inserted  int
	Duplicate int
	Skipped   []Skip
}

func (r Report) String() string {
	return fmt.Sprintf("%d inserted, %d duplicate, %d skipped", r.Inserted, r.Duplicate, len(r.Skipped))
}

// Reader ingests feed entries into the history store. History is required;
// Logf and HTTPClient have usable defaults.
type Reader struct {
	History    *history.Store
	Logf       logger.Logf
	HTTPClient *http.Client

	fp *gofeed.Parser
}

// New returns a Reader writing to h.
func New(h *history.Store) *Reader {
	return &Reader{
		History:    h,
		Logf:       logger.Discard(),
		HTTPClient: request.DefaultClient,
		fp:         gofeed.NewParser(),
	}
}

// Ingest normalizes the raw items of one feed into records and appends them
// to the history store, in the order received. Malformed items are counted
// and skipped, never aborting the batch; a storage failure aborts with the
// partial report.
func (r *Reader) Ingest(ctx context.Context, ch model.Channel, items []RawItem) (Report, error) {
	var report Report
	for _, raw := range items {
		item, err := model.NewItem(raw.Title, raw.Link, raw.Description, raw.PubDate)
		if err != nil {
			r.Logf("reader: skipping item: %v", err)
			report.Skipped = append(report.Skipped, Skip{Title: raw.Title, Reason: err.Error()})
			continue
		}
		inserted, err := r.History.Append(ctx, model.ItemRecord{Item: item, Channel: ch})
		if err != nil {
			return report, err
		}
		if inserted {
			report.Inserted++
		} else {
			report.Duplicate++
		}
	}
	return report, nil
}

// Fetch downloads and parses the feed at url, returning its channel
// metadata and raw items in document order.
func (r *Reader) Fetch(ctx context.Context, url string) (model.Channel, []RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Channel{}, nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := r.HTTPClient.Do(req)
	if err != nil {
		return model.Channel{}, nil, fmt.Errorf("fetching %q: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return model.Channel{}, nil, fmt.Errorf("fetching %q: want 200, got %d", url, res.StatusCode)
	}

	feed, err := r.fp.Parse(res.Body)
	if err != nil {
		return model.Channel{}, nil, fmt.Errorf("parsing %q: %w", url, err)
	}

	ch := model.Channel{Title: feed.Title, Link: feed.Link}
	if ch.Link == "" {
		ch.Link = url
	}

	var items []RawItem
	for _, fi := range feed.Items {
		items = append(items, RawItem{
			Title:       fi.Title,
			Link:        fi.Link,
			Description: fi.Description,
			PubDate:     fi.Published,
		})
	}
	return ch, items, nil
}

// Maximum number of fetches that can run at the same time.
const fetchConcurrencyLimit = 10

// ReadFeeds fetches every feed in urls concurrently and ingests them in
// the order given. A feed that fails to fetch is logged and skipped; the
// remaining feeds are still processed. The returned report sums up all
// feeds.
func (r *Reader) ReadFeeds(ctx context.Context, urls []string) (Report, error) {
	type result struct {
		ch    model.Channel
		items []RawItem
		err   error
	}
	results := make([]result, len(urls))

	lwg := syncx.NewLimitedWaitGroup(fetchConcurrencyLimit)
	for i, url := range urls {
		lwg.Go(func() {
			r.Logf("reader: downloading %s", url)
			ch, items, err := r.Fetch(ctx, url)
			results[i] = result{ch: ch, items: items, err: err}
		})
	}
	lwg.Wait()

	var total Report
	for _, res := range results {
		if res.err != nil {
			r.Logf("reader: %v", res.err)
			continue
		}
		report, err := r.Ingest(ctx, res.ch, res.items)
		total.Inserted += report.Inserted
		total.Duplicate += report.Duplicate
		total.Skipped = append(total.Skipped, report.Skipped...)
		if err != nil {
			return total, err
		}
	}
	r.Logf("reader: %s", total)
	return total, nil
}
