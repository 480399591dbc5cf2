// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
)

// SMTP emails each notification as a multipart message with text and HTML
// alternatives.
type SMTP struct {
	Addr     string // host:port of the SMTP server
	From     string
	To       string
	Password string // empty disables authentication

	Logf logger.Logf
	Now  func() time.Time

	// Swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP returns an SMTP notifier sending through the server at addr.
func NewSMTP(addr, from, to, password string) *SMTP {
	return &SMTP{
		Addr:     addr,
		From:     from,
		To:       to,
		Password: password,
		Logf:     logger.Discard(),
		Now:      time.Now,
		sendMail: smtp.SendMail,
	}
}

// Notify implements the [Notifier] interface.
func (n *SMTP) Notify(ctx context.Context, recs []model.ItemRecord) error {
	if len(recs) == 0 {
		n.Logf("notify: nothing new")
		return nil
	}

	subj := subject(n.Now())
	text, err := renderText(subj, recs)
	if err != nil {
		return err
	}
	html, err := renderHTML(subj, recs)
	if err != nil {
		return err
	}
	msg, err := composeEmail(n.From, n.To, subj, text, html)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.Password != "" {
		host, _, err := net.SplitHostPort(n.Addr)
		if err != nil {
			return fmt.Errorf("notify: bad SMTP address %q: %w", n.Addr, err)
		}
		auth = smtp.PlainAuth("", n.From, n.Password, host)
	}

	n.Logf("notify: emailing %d items to %s", len(recs), n.To)
	if err := n.sendMail(n.Addr, auth, n.From, []string{n.To}, msg); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func composeEmail(from, to, subj string, text, html []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subj)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	// The plain text part goes first so clients that don't speak multipart
	// show something readable.
	for _, part := range []struct {
		typ  string
		body []byte
	}{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.typ}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write(part.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
