// Package telegram implements the notify Adapter for Telegram bots.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/atpline/cab/internal/notify"
)

// sender abstracts the bot method we use, enabling test mocks.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Adapter implements notify.Adapter for Telegram.
type Adapter struct {
	b      sender
	chatID int64
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token  string // bot API token
	ChatID int64  // chat to post to
	// For testing: inject a mock sender instead of the real bot.
	Sender sender
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Sender == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	if opts.ChatID == 0 {
		return nil, fmt.Errorf("telegram: chat id is required")
	}
	a := &Adapter{chatID: opts.ChatID, b: opts.Sender}
	if a.b == nil {
		b, err := bot.New(opts.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: create bot: %w", err)
		}
		a.b = b
	}
	return a, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "telegram" }

// Send posts the event as plain text; Telegram has no attachment sidebar.
func (a *Adapter) Send(ctx context.Context, e notify.Event) error {
	text := e.Title
	if e.Body != "" {
		text += "\n" + e.Body
	}
	if !e.Stamp.IsZero() {
		text += "\n" + e.Stamp.Format("2006-01-02 15:04")
	}

	_, err := a.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: a.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Close is a no-op; the bot is used outbound-only without polling.
func (a *Adapter) Close() error { return nil }
