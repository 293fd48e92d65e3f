// Package slack implements the notify Adapter for Slack over the Web API.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/atpline/cab/internal/notify"
)

const (
	colorChat   = "#2196f3"
	colorDigest = "#36a64f"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter implements notify.Adapter for Slack.
type Adapter struct {
	client    slackClient
	channelID string
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	a := &Adapter{channelID: opts.ChannelID, client: opts.Client}
	if a.client == nil {
		a.client = slackapi.New(opts.BotToken)
	}
	return a, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "slack" }

// Send posts the event as an attachment with a kind-colored sidebar.
func (a *Adapter) Send(ctx context.Context, e notify.Event) error {
	color := colorChat
	if e.Kind == notify.KindDigest {
		color = colorDigest
	}
	att := slackapi.Attachment{
		Title:    e.Title,
		Text:     e.Body,
		Color:    color,
		Fallback: e.Title,
	}
	if !e.Stamp.IsZero() {
		att.Footer = e.Stamp.Format("2006-01-02 15:04")
	}

	_, _, err := a.client.PostMessageContext(ctx, a.channelID, slackapi.MsgOptionAttachments(att))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close is a no-op; the Web API client holds no connection.
func (a *Adapter) Close() error { return nil }
