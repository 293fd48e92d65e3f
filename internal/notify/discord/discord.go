// Package discord implements the notify Adapter for Discord over the REST API.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/atpline/cab/internal/notify"
)

const (
	colorChat   = 0x2196f3
	colorDigest = 0x36a64f
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Adapter implements notify.Adapter for Discord. Outbound embeds go over
// REST; no gateway connection is opened.
type Adapter struct {
	sess      session
	channelID string
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	a := &Adapter{channelID: opts.ChannelID, sess: opts.Session}
	if a.sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		a.sess = s
	}
	return a, nil
}

// Name identifies the platform.
func (a *Adapter) Name() string { return "discord" }

// Send posts the event as an embed with a kind-colored sidebar.
func (a *Adapter) Send(ctx context.Context, e notify.Event) error {
	color := colorChat
	if e.Kind == notify.KindDigest {
		color = colorDigest
	}
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Body,
		Color:       color,
	}
	if !e.Stamp.IsZero() {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Stamp.Format("2006-01-02 15:04")}
	}

	_, err := a.sess.ChannelMessageSendEmbed(a.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// Close releases the underlying session.
func (a *Adapter) Close() error { return a.sess.Close() }
