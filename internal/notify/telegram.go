// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/model"
	"go.astrophena.name/feederreader/internal/request"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends each notification as a Bot API message.
type Telegram struct {
	Token  string
	ChatID string

	Logf       logger.Logf
	Now        func() time.Time
	HTTPClient *http.Client
	APIURL     string // overridden in tests

	scrubber *strings.Replacer
}

// NewTelegram returns a Telegram notifier posting to chatID on behalf of
// the bot identified by token.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:      token,
		ChatID:     chatID,
		Logf:       logger.Discard(),
		Now:        time.Now,
		HTTPClient: request.DefaultClient,
		APIURL:     telegramAPI,
		scrubber:   strings.NewReplacer(token, "[EXPOSED TELEGRAM BOT TOKEN]"),
	}
}

// https://core.telegram.org/bots/api#sendmessage
type telegramMessage struct {
	ChatID             string `json:"chat_id"`
	Text               string `json:"text"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
}

// Notify implements the [Notifier] interface.
func (n *Telegram) Notify(ctx context.Context, recs []model.ItemRecord) error {
	if len(recs) == 0 {
		n.Logf("notify: nothing new")
		return nil
	}

	subj := subject(n.Now())
	text, err := renderText(subj, recs)
	if err != nil {
		return err
	}

	msg := &telegramMessage{
		ChatID: n.ChatID,
		Text:   subj + "\n\n" + string(text),
	}
	msg.LinkPreviewOptions.IsDisabled = true

	n.Logf("notify: sending %d items to chat %s", len(recs), n.ChatID)
	_, err = request.MakeJSON[request.IgnoreResponse](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        n.APIURL + "/bot" + n.Token + "/sendMessage",
		Body:       msg,
		HTTPClient: n.HTTPClient,
		Scrubber:   n.scrubber,
	})
	return err
}
