// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package notify delivers newly matched records to the configured channel.
//
// Delivery is at-least-once: the filter pipeline decides what is new, a
// notifier only formats and sends. Every notifier treats an empty batch as
// a no-op.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/store"
)

// Notifier sends one batch of newly matched records.
type Notifier interface {
	Notify(ctx context.Context, recs []model.ItemRecord) error
}

//go:embed templates
var tmplFS embed.FS

var (
	htmlMessage = template.Must(template.ParseFS(tmplFS, "templates/message.html"))
	textMessage = texttemplate.Must(texttemplate.ParseFS(tmplFS, "templates/message.txt"))
)

type messageData struct {
	Subject string
	Items   []model.ItemRecord
}

func subject(now time.Time) string {
	return "FeederReader notification " + now.Format("Mon Jan _2 15:04:05 2006")
}

func renderHTML(subj string, recs []model.ItemRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlMessage.ExecuteTemplate(&buf, "message.html", messageData{Subject: subj, Items: recs}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderText(subj string, recs []model.ItemRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := textMessage.ExecuteTemplate(&buf, "message.txt", messageData{Subject: subj, Items: recs}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LogNote writes each notification as a dated HTML page into storage, under
// "notification/". Rerunning on the same day replaces that day's page.
type LogNote struct {
	KV   store.Store
	Logf logger.Logf
	Now  func() time.Time
}

// NewLogNote returns a LogNote writing into kv.
func NewLogNote(kv store.Store) *LogNote {
	return &LogNote{
		KV:   kv,
		Logf: logger.Discard(),
		Now:  time.Now,
	}
}

// Notify implements the [Notifier] interface.
func (n *LogNote) Notify(ctx context.Context, recs []model.ItemRecord) error {
	if len(recs) == 0 {
		n.Logf("notify: nothing new")
		return nil
	}
	now := n.Now()
	b, err := renderHTML(subject(now), recs)
	if err != nil {
		return err
	}
	key := "notification/" + now.Format("2006-Jan-02") + ".html"
	n.Logf("notify: writing %d items to %s", len(recs), key)
	if err := n.KV.Set(ctx, key, b); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
