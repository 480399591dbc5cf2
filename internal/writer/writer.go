// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package writer renders the archived items as a browsable static site.
//
// The site has a main index and four subject indices (court, docket, date
// and the filter matches), each paginated. Output goes through a store, so
// the dir backend gives atomically replaced files that a web server can
// serve directly while the writer runs.
package writer

import (
	"bytes"
	"context"
	"embed"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"maps"
	"slices"
	"sort"
	"strconv"
	texttemplate "text/template"

	"go.astrophena.name/feederreader/internal/filter"
	"go.astrophena.name/feederreader/internal/history"
	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/store"
)

// Format selects the output representation of the site.
type Format string

// Supported formats. CSV is handled by [Writer.WriteCSV] and writes a flat
// extract instead of a site.
const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f == FormatHTML || f == FormatMarkdown || f == FormatCSV
}

//go:embed templates
var tmplFS embed.FS

func parseHTML(page string) *template.Template {
	return template.Must(template.ParseFS(tmplFS, "templates/layout.html", "templates/"+page))
}

func parseMarkdown(page string) *texttemplate.Template {
	return texttemplate.Must(texttemplate.ParseFS(tmplFS, "templates/"+page))
}

var (
	htmlTmpls = map[string]*template.Template{
		"index":         parseHTML("index.html"),
		"subject_index": parseHTML("subject_index.html"),
		"subject_page":  parseHTML("subject_page.html"),
	}
	mdTmpls = map[string]*texttemplate.Template{
		"index":         parseMarkdown("index.md"),
		"subject_index": parseMarkdown("subject_index.md"),
		"subject_page":  parseMarkdown("subject_page.md"),
	}
)

type subject struct {
	Dir  string
	Name string
}

var subjects = []subject{
	{"court", "Court"},
	{"docket", "Docket"},
	{"date", "Date"},
	{"filtered", "Filtered"},
}

// Writer renders the site. History, Filter and Out are required; the rest
// have usable defaults.
type Writer struct {
	History *history.Store
	Filter  *filter.Filter
	Out     store.Store
	Logf    logger.Logf

	Format   Format
	PageSize int // keys per page; 0 puts everything on one page
}

// New returns a Writer rendering h and the filter matches of f into out as
// paginated HTML.
func New(h *history.Store, f *filter.Filter, out store.Store) *Writer {
	return &Writer{
		History:  h,
		Filter:   f,
		Out:      out,
		Logf:     logger.Discard(),
		Format:   FormatHTML,
		PageSize: 20,
	}
}

// indices groups every record three ways (court title, docket, publication
// day) plus the filter matches by docket. Records without a docket group
// under "Unknown".
type indices map[string]map[string][]model.ItemRecord

const dayFormat = "2006-Jan-02"

func (w *Writer) loadIndices(ctx context.Context) (indices, error) {
	idx := indices{}
	for _, sub := range subjects {
		idx[sub.Dir] = map[string][]model.ItemRecord{}
	}

	add := func(dir, key string, rec model.ItemRecord) {
		idx[dir][key] = append(idx[dir][key], rec)
	}
	docketOf := func(rec model.ItemRecord) string {
		if rec.Item.HasDocket() {
			return rec.Item.Docket
		}
		return "Unknown"
	}

	for rec, err := range w.History.Scan(ctx, "") {
		if err != nil {
			return nil, err
		}
		add("court", rec.Channel.Title, rec)
		add("docket", docketOf(rec), rec)
		add("date", rec.Item.PubDate.UTC().Format(dayFormat), rec)
	}

	set, err := w.Filter.Set(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range set {
		add("filtered", docketOf(rec), rec)
	}

	return idx, nil
}

type page struct {
	Num  int
	Keys []string
}

// paginate chunks keys into pages of size. A size of 0 disables pagination
// and yields a single page; a positive size with no keys yields no pages.
func paginate(keys []string, size int) []page {
	if size <= 0 {
		return []page{{Num: 1, Keys: keys}}
	}
	var pages []page
	for start := 0; start < len(keys); start += size {
		pages = append(pages, page{
			Num:  len(pages) + 1,
			Keys: keys[start:min(start+size, len(keys))],
		})
	}
	return pages
}

type section struct {
	Key   string
	Items []model.ItemRecord
}

type indexData struct {
	Subjects []subject
}

type subjectIndexData struct {
	Name  string
	Pages []int
}

type pageData struct {
	Name       string
	Page       int
	Prev, Next int // 0 means no such page
	Sections   []section
}

func (w *Writer) render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch w.Format {
	case FormatHTML:
		err = htmlTmpls[name].ExecuteTemplate(&buf, "layout.html", data)
	case FormatMarkdown:
		err = mdTmpls[name].ExecuteTemplate(&buf, name+".md", data)
	default:
		err = fmt.Errorf("writer: can't render site as %q", w.Format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Writer) put(ctx context.Context, key string, b []byte) error {
	w.Logf("writer: writing %s", key)
	return w.Out.Set(ctx, key, b)
}

// Write renders the whole site into Out. Existing pages are replaced;
// stale pages from earlier, larger runs are left alone.
func (w *Writer) Write(ctx context.Context) error {
	idx, err := w.loadIndices(ctx)
	if err != nil {
		return err
	}

	ext := string(w.Format)
	for _, sub := range subjects {
		data := idx[sub.Dir]
		keys := slices.Sorted(maps.Keys(data))
		pages := paginate(keys, w.PageSize)

		var nums []int
		for _, p := range pages {
			nums = append(nums, p.Num)
		}
		b, err := w.render("subject_index", subjectIndexData{Name: sub.Name, Pages: nums})
		if err != nil {
			return err
		}
		if err := w.put(ctx, sub.Dir+"/index."+ext, b); err != nil {
			return err
		}

		for i, p := range pages {
			pd := pageData{Name: sub.Name, Page: p.Num}
			if i > 0 {
				pd.Prev = pages[i-1].Num
			}
			if i < len(pages)-1 {
				pd.Next = pages[i+1].Num
			}
			for _, k := range p.Keys {
				pd.Sections = append(pd.Sections, section{Key: k, Items: data[k]})
			}
			b, err := w.render("subject_page", pd)
			if err != nil {
				return err
			}
			if err := w.put(ctx, sub.Dir+"/index_"+strconv.Itoa(p.Num)+"."+ext, b); err != nil {
				return err
			}
		}
	}

	b, err := w.render("index", indexData{Subjects: subjects})
	if err != nil {
		return err
	}
	return w.put(ctx, "index."+ext, b)
}

// WriteCSV writes a flat extract of the court index to out, one row per
// record, sorted by court and publication time.
func (w *Writer) WriteCSV(ctx context.Context, out io.Writer) error {
	idx, err := w.loadIndices(ctx)
	if err != nil {
		return err
	}
	court := idx["court"]

	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"court", "docket", "pub_date", "title", "link", "description"}); err != nil {
		return err
	}
	for _, ct := range slices.Sorted(maps.Keys(court)) {
		recs := slices.Clone(court[ct])
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Item.PubDate.Before(recs[j].Item.PubDate)
		})
		for _, rec := range recs {
			row := []string{
				rec.Channel.Title,
				rec.Item.Docket,
				rec.Item.PubDate.Format("Mon Jan _2 15:04:05 2006"),
				rec.Item.Title,
				rec.Item.Link,
				rec.Item.Description,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
