// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Feederreader watches US court RSS feeds for interesting docket numbers.

It archives every feed entry into an hour-partitioned local store, matches
the archive against a watch-list of docket numbers, notifies about new
matches and renders the archive as a browsable static site.

# Usage

	$ feederreader [flags...] <command>

The following commands are available:

  - run: perform a full pipeline pass (ingest, filter, notify, sweep,
    write).
  - ingest: fetch the configured feeds and archive their entries.
  - filter: match the archive against the watch-list and notify about new
    matches.
  - sweep: drop partitions older than the retention window.
  - write: render the archive as a static site (or CSV on standard
    output).
  - watch: keep running the pipeline at the configured times of day.
  - feeds: list the configured feeds.

Commands are idempotent: ingesting the same feed or filtering twice never
duplicates records or notifications.

# Configuration

Configuration lives in a YAML file passed with the -config flag:

	state_dir: data
	state_backend: dir # or sqlite, for a single database file
	reader:
	  feeds:
	    - https://ecf.dcd.uscourts.gov/cgi-bin/rss_outside.pl
	filter:
	  dockets:
	    - 2:23-cv-04570-HG
	cleaner:
	  days_ago: 90
	writer:
	  format: html
	  page_size: 20
	  output_dir: output
	notifier:
	  kind: log
	monitor:
	  every: ["07:00", "20:00"]

Without -config, built-in defaults apply.

# Environment Variables

Secrets are never read from the configuration file:

  - SMTP_PASSWORD: password for the smtp notifier.
  - TELEGRAM_TOKEN: bot token for the telegram notifier.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/feederreader/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
