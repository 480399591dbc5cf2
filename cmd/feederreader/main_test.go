// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/feederreader/internal/cli"
	"go.astrophena.name/feederreader/internal/filelock"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/testutil"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>District of Columbia</title>
<link>https://ecf.dcd.uscourts.gov</link>
<description>Public Filings in the last 24 Hours</description>
<item>
<title>16-cv-07161 Smith v. Jones</title>
<pubDate>Fri, 05 Jan 2024 10:15:00 GMT</pubDate>
<description>Complaint</description>
<link>https://ecf.dcd.uscourts.gov/cgi-bin/DktRpt.pl?1</link>
</item>
<item>
<title>1:24-cv-00099 Unwatched v. Case</title>
<pubDate>Fri, 05 Jan 2024 10:20:00 GMT</pubDate>
<description></description>
<link>https://ecf.dcd.uscourts.gov/cgi-bin/DktRpt.pl?2</link>
</item>
</channel>
</rss>
`

type recordingNotifier struct {
	batches [][]model.ItemRecord
}

func (r *recordingNotifier) Notify(ctx context.Context, recs []model.ItemRecord) error {
	r.batches = append(r.batches, recs)
	return nil
}

func testEnv(stdout io.Writer, args ...string) *cli.Env {
	return &cli.Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: io.Discard,
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNoCommand(t *testing.T) {
	t.Parallel()

	err := cli.Run(context.Background(), new(app), testEnv(io.Discard))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	err := cli.Run(context.Background(), new(app), testEnv(io.Discard, "frobnicate"))
	if !errors.Is(err, cli.ErrInvalidArgs) {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}

func TestFeeds(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
reader:
  feeds:
    - https://ecf.dcd.uscourts.gov/cgi-bin/rss_outside.pl
    - https://ecf.nyed.uscourts.gov/cgi-bin/readyDockets.pl
`)
	var stdout bytes.Buffer
	if err := cli.Run(context.Background(), new(app), testEnv(&stdout, "-config", path, "feeds")); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, stdout.String(),
		"https://ecf.dcd.uscourts.gov/cgi-bin/rss_outside.pl\nhttps://ecf.nyed.uscourts.gov/cgi-bin/readyDockets.pl\n")
}

func TestRunPipeline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	base := t.TempDir()
	stateDir := filepath.Join(base, "data")
	outDir := filepath.Join(base, "output")
	path := writeConfig(t, fmt.Sprintf(`
state_dir: %s
reader:
  feeds:
    - %s
filter:
  dockets:
    - 16-cv-07161
writer:
  output_dir: %s
`, stateDir, srv.URL, outDir))

	rec := new(recordingNotifier)
	run := func() {
		t.Helper()
		a := &app{notifier: rec}
		if err := cli.Run(context.Background(), a, testEnv(io.Discard, "-config", path, "run")); err != nil {
			t.Fatal(err)
		}
	}

	run()

	// The first pass notifies about the one watched record.
	testutil.AssertEqual(t, len(rec.batches), 1)
	testutil.AssertEqual(t, len(rec.batches[0]), 1)
	testutil.AssertEqual(t, rec.batches[0][0].Item.Docket, "16-cv-07161")

	// Archive, filter set and site all landed on disk.
	partitions, err := filepath.Glob(filepath.Join(stateDir, "*", "*", "items.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(partitions) == 0 {
		t.Fatal("no partition files were written")
	}
	fset, err := os.ReadFile(filepath.Join(stateDir, "filter.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(fset), "16-cv-07161") {
		t.Errorf("filter.json misses the match:\n%s", fset)
	}
	if _, err := os.Stat(filepath.Join(outDir, "index.html")); err != nil {
		t.Errorf("site index was not written: %v", err)
	}

	// A second pass over the same feed notifies about nothing.
	run()
	testutil.AssertEqual(t, len(rec.batches), 2)
	testutil.AssertEqual(t, len(rec.batches[1]), 0)
}

func TestRunFiltersBeforeSweep(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	stateDir := filepath.Join(base, "data")

	// A partition far beyond the retention window holding a watched record
	// the filter has never seen, as left behind by months of ingest-only
	// invocations.
	partDir := filepath.Join(stateDir, "20240105", "10")
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		t.Fatal(err)
	}
	const oldPartition = `[
  {
    "item": {
      "title": "16-cv-07161 Smith v. Jones",
      "link": "https://ecf.dcd.uscourts.gov/cgi-bin/DktRpt.pl?1",
      "description": "Complaint",
      "pub_date": "2024-01-05T10:15:00Z",
      "docket": "16-cv-07161",
      "parties": "Smith v. Jones"
    },
    "channel": {
      "title": "District of Columbia",
      "link": "https://ecf.dcd.uscourts.gov"
    }
  }
]`
	if err := os.WriteFile(filepath.Join(partDir, "items.json"), []byte(oldPartition), 0o644); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, fmt.Sprintf(`
state_dir: %s
reader:
  feeds: []
filter:
  dockets:
    - 16-cv-07161
writer:
  output_dir: %s
`, stateDir, filepath.Join(base, "output")))

	rec := new(recordingNotifier)
	a := &app{notifier: rec}
	if err := cli.Run(context.Background(), a, testEnv(io.Discard, "-config", path, "run")); err != nil {
		t.Fatal(err)
	}

	// The match is caught and notified before retention removes the
	// partition.
	testutil.AssertEqual(t, len(rec.batches), 1)
	testutil.AssertEqual(t, len(rec.batches[0]), 1)
	testutil.AssertEqual(t, rec.batches[0][0].Item.Docket, "16-cv-07161")

	// The sweep still ran, afterwards.
	if _, err := os.Stat(filepath.Join(partDir, "items.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("over-age partition survived the run: %v", err)
	}
}

func TestRunPipelineSQLite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	base := t.TempDir()
	stateDir := filepath.Join(base, "data")
	path := writeConfig(t, fmt.Sprintf(`
state_dir: %s
state_backend: sqlite
reader:
  feeds:
    - %s
filter:
  dockets:
    - 16-cv-07161
writer:
  output_dir: %s
`, stateDir, srv.URL, filepath.Join(base, "output")))

	rec := new(recordingNotifier)
	a := &app{notifier: rec}
	if err := cli.Run(context.Background(), a, testEnv(io.Discard, "-config", path, "run")); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, len(rec.batches), 1)
	testutil.AssertEqual(t, len(rec.batches[0]), 1)
	if _, err := os.Stat(filepath.Join(stateDir, "feederreader.db")); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	path := writeConfig(t, fmt.Sprintf(`
state_dir: %s
writer:
  format: csv
  output_dir: %s
`, filepath.Join(base, "data"), filepath.Join(base, "output")))

	var stdout bytes.Buffer
	if err := cli.Run(context.Background(), new(app), testEnv(&stdout, "-config", path, "write")); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout.String(), "court,docket,pub_date,title,link,description\n") {
		t.Errorf("unexpected CSV output:\n%s", stdout.String())
	}
}

func TestAlreadyRunning(t *testing.T) {
	t.Parallel()

	stateDir := filepath.Join(t.TempDir(), "data")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock, err := filelock.Acquire(filepath.Join(stateDir, "feederreader.lock"), "test")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	path := writeConfig(t, "state_dir: "+stateDir+"\n")
	err = cli.Run(context.Background(), new(app), testEnv(io.Discard, "-config", path, "run"))
	if !errors.Is(err, errAlreadyRunning) {
		t.Fatalf("want errAlreadyRunning, got %v", err)
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	every := []string{"07:00", "20:00"}
	cases := map[string]struct {
		now  time.Time
		want time.Time
	}{
		"before first": {
			now:  time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC),
		},
		"between": {
			now:  time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC),
		},
		"after last": {
			now:  time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 6, 7, 0, 0, 0, time.UTC),
		},
		"exactly at": {
			now:  time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, nextRun(tc.now, every), tc.want)
		})
	}
}
