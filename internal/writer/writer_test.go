// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package writer

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/feederreader/internal/filter"
	"go.astrophena.name/feederreader/internal/history"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/store"
	"go.astrophena.name/feederreader/internal/testutil"

	"golang.org/x/tools/txtar"
)

//go:embed testdata/site.txtar
var siteTxtar []byte

// fixtureWriter opens the archive from testdata/site.txtar through the dir
// backend, the way a real deployment lays it out.
func fixtureWriter(t *testing.T) (*Writer, *store.Mem) {
	t.Helper()
	dir := t.TempDir()
	testutil.ExtractTxtar(t, txtar.Parse(siteTxtar), dir)
	kv, err := store.NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	h := history.New(kv)
	out := store.NewMem()
	w := New(h, filter.New(h, kv), out)
	return w, out
}

func outKeys(t *testing.T, out *store.Mem) []string {
	t.Helper()
	keys, err := out.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

func outPage(t *testing.T, out *store.Mem, key string) string {
	t.Helper()
	b, err := out.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if b == nil {
		t.Fatalf("%s was not written", key)
	}
	return string(b)
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	w, out := fixtureWriter(t)
	if err := w.Write(context.Background()); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, outKeys(t, out), []string{
		"court/index.html",
		"court/index_1.html",
		"date/index.html",
		"date/index_1.html",
		"docket/index.html",
		"docket/index_1.html",
		"filtered/index.html",
		"filtered/index_1.html",
		"index.html",
	})

	index := outPage(t, out, "index.html")
	for _, want := range []string{
		`<a href="court/index.html">Court</a>`,
		`<a href="docket/index.html">Docket</a>`,
		`<a href="date/index.html">Date</a>`,
		`<a href="filtered/index.html">Filtered</a>`,
	} {
		if !strings.Contains(index, want) {
			t.Errorf("index.html misses %q:\n%s", want, index)
		}
	}

	// The docket-less record groups under "Unknown".
	docket := outPage(t, out, "docket/index_1.html")
	for _, want := range []string{
		"<h2>16-cv-07161 (1 items)</h2>",
		"<h2>Unknown (1 items)</h2>",
		`<a href="https://ecf.dcd.uscourts.gov/cgi-bin/DktRpt.pl?1">link</a>`,
	} {
		if !strings.Contains(docket, want) {
			t.Errorf("docket/index_1.html misses %q:\n%s", want, docket)
		}
	}

	// The filtered index comes from filter.json, not from a rescan.
	filtered := outPage(t, out, "filtered/index_1.html")
	if !strings.Contains(filtered, "Smith v. Jones") {
		t.Errorf("filtered/index_1.html misses the match:\n%s", filtered)
	}
	if strings.Contains(filtered, "Sookra") {
		t.Errorf("filtered/index_1.html has an unmatched record:\n%s", filtered)
	}

	// Date keys use the publication day.
	date := outPage(t, out, "date/index_1.html")
	for _, want := range []string{"2023-Dec-28", "2024-Jan-05"} {
		if !strings.Contains(date, want) {
			t.Errorf("date/index_1.html misses %q:\n%s", want, date)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	w, out := fixtureWriter(t)
	w.Format = FormatMarkdown
	if err := w.Write(context.Background()); err != nil {
		t.Fatal(err)
	}

	index := outPage(t, out, "index.md")
	if !strings.Contains(index, "[Court](court/index.md)") {
		t.Errorf("index.md misses the court link:\n%s", index)
	}

	docket := outPage(t, out, "docket/index_1.md")
	if !strings.Contains(docket, "[link](https://ecf.dcd.uscourts.gov/cgi-bin/DktRpt.pl?1)") {
		t.Errorf("docket/index_1.md misses the item link:\n%s", docket)
	}
}

func TestWritePagination(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMem()
	h := history.New(kv)
	h.Now = func() time.Time { return time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC) }

	for i := range 3 {
		item, err := model.NewItem(
			fmt.Sprintf("1:24-cv-%05d A v. B", i),
			fmt.Sprintf("https://example.com/%d", i),
			"",
			"Fri, 05 Jan 2024 10:15:00 GMT",
		)
		if err != nil {
			t.Fatal(err)
		}
		ch := model.Channel{Title: fmt.Sprintf("Court %d", i), Link: fmt.Sprintf("https://court-%d.example.com", i)}
		if _, err := h.Append(ctx, model.ItemRecord{Item: item, Channel: ch}); err != nil {
			t.Fatal(err)
		}
	}

	out := store.NewMem()
	w := New(h, filter.New(h, kv), out)
	w.PageSize = 1
	if err := w.Write(ctx); err != nil {
		t.Fatal(err)
	}

	keys := outKeys(t, out)
	for _, want := range []string{"court/index_1.html", "court/index_2.html", "court/index_3.html"} {
		testutil.AssertContains(t, keys, want)
	}
	testutil.AssertNotContains(t, keys, "court/index_4.html")

	// The middle page links to both neighbors.
	middle := outPage(t, out, "court/index_2.html")
	for _, want := range []string{
		`<a class="button" href="index_1.html">Page 1</a>`,
		`<a class="button" href="index_3.html">Page 3</a>`,
	} {
		if !strings.Contains(middle, want) {
			t.Errorf("court/index_2.html misses %q:\n%s", want, middle)
		}
	}
	first := outPage(t, out, "court/index_1.html")
	if strings.Contains(first, "Page 0") {
		t.Errorf("court/index_1.html links to a page before the first:\n%s", first)
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMem()
	h := history.New(kv)
	h.Now = func() time.Time { return time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC) }

	item, err := model.NewItem(
		"16-cv-07161 Smith v. Jones",
		"https://example.com/1",
		"Complaint",
		"Fri, 05 Jan 2024 10:15:00 GMT",
	)
	if err != nil {
		t.Fatal(err)
	}
	ch := model.Channel{Title: "District of Columbia", Link: "https://ecf.dcd.uscourts.gov"}
	if _, err := h.Append(ctx, model.ItemRecord{Item: item, Channel: ch}); err != nil {
		t.Fatal(err)
	}

	w := New(h, filter.New(h, kv), store.NewMem())
	var buf bytes.Buffer
	if err := w.WriteCSV(ctx, &buf); err != nil {
		t.Fatal(err)
	}

	want := "court,docket,pub_date,title,link,description\n" +
		"District of Columbia,16-cv-07161,Fri Jan  5 10:15:00 2024,16-cv-07161 Smith v. Jones,https://example.com/1,Complaint\n"
	testutil.AssertEqual(t, buf.String(), want)
}

func TestWriteEmptyArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMem()
	h := history.New(kv)
	out := store.NewMem()
	w := New(h, filter.New(h, kv), out)
	if err := w.Write(ctx); err != nil {
		t.Fatal(err)
	}

	// Subject indices exist even when empty; pages don't.
	keys := outKeys(t, out)
	testutil.AssertEqual(t, keys, []string{
		"court/index.html",
		"date/index.html",
		"docket/index.html",
		"filtered/index.html",
		"index.html",
	})
}
