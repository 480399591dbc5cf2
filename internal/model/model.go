// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package model defines the canonical representation of feed entries.
//
// A court RSS item title usually carries a docket string followed by the
// party names:
//
//	2:23-cv-09491-PKC-ST Sookra v. Berkeley Carroll School et al
//
// The docket is composed of a court number, a two-digit year, the case type
// (cv for civil, cr for criminal), a case number and optionally the judge's
// initials. Items whose title doesn't match this shape are still archived,
// but are invisible to the docket filter.
package model

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Channel is the feed-level metadata shared by all items pulled from one
// feed fetch.
type Channel struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Item is one feed entry. Docket and Parties are set only when the title
// matches the docket pattern. Items are immutable once constructed.
type Item struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	PubDate     time.Time `json:"pub_date"`
	Docket      string    `json:"docket,omitempty"`
	Parties     string    `json:"parties,omitempty"`
}

// HasDocket reports whether the item's title carried a docket string.
func (i Item) HasDocket() bool { return i.Docket != "" }

// pubDateFormat is the date format used by RSS 2.0 pubDate elements.
const pubDateFormat = time.RFC1123

// The court prefix ("2:") and judge suffix ("-PKC-ST") are optional: some
// feeds publish bare dockets like "16-cv-07161".
var docketRe = regexp.MustCompile(`^((?:.+:)?\d+-\w+-\d+\S*)\s+(.*)$`)

// NewItem constructs an Item from the raw fields of one feed entry,
// extracting the docket and parties from the title when present. It returns
// an error if the link is not an absolute URL or the publication date can't
// be parsed; such entries are skipped by ingestion, not stored.
func NewItem(title, link, description, pubDate string) (Item, error) {
	u, err := url.Parse(link)
	if err != nil || !u.IsAbs() {
		return Item{}, fmt.Errorf("item %q: invalid link %q", title, link)
	}
	t, err := time.Parse(pubDateFormat, pubDate)
	if err != nil {
		// Some feeds use a numeric zone offset instead of a zone name.
		t, err = time.Parse(time.RFC1123Z, pubDate)
	}
	if err != nil {
		return Item{}, fmt.Errorf("item %q: unparseable pub date %q", title, pubDate)
	}

	item := Item{
		Title:       title,
		Link:        link,
		Description: description,
		PubDate:     t,
	}
	if m := docketRe.FindStringSubmatch(title); m != nil {
		item.Docket = m[1]
		item.Parties = m[2]
	}
	return item, nil
}

// ItemRecord pairs one item with its originating channel. It is the unit
// persisted in the history store and the filter set.
type ItemRecord struct {
	Item    Item    `json:"item"`
	Channel Channel `json:"channel"`
}

// Key is the identity tuple of a record: two records are the same
// occurrence iff their keys are equal. Descriptions and timestamps don't
// participate, so a re-fetch that rewords a description doesn't create a
// second record.
type Key struct {
	ChannelLink string
	ItemLink    string
	ItemTitle   string
}

// Key returns the identity tuple of the record.
func (r ItemRecord) Key() Key {
	return Key{
		ChannelLink: r.Channel.Link,
		ItemLink:    r.Item.Link,
		ItemTitle:   r.Item.Title,
	}
}
