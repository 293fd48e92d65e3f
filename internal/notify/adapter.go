// Package notify forwards dispatcher chat traffic and trip digests to
// external chat platforms (Slack, Discord, Telegram).
package notify

import (
	"context"
	"time"
)

// Kind identifies what an event describes.
type Kind string

const (
	KindChatMessage  Kind = "chat_message"
	KindStatusChange Kind = "status_change"
	KindDigest       Kind = "digest"
)

// Event is one notification ready for delivery.
type Event struct {
	Kind   Kind
	Title  string
	Body   string
	Author string
	Stamp  time.Time
}

// Adapter is the interface platform-specific implementations satisfy.
// Adapters are outbound-only: the bridge pushes events, nothing flows
// back.
type Adapter interface {
	// Name identifies the platform, e.g. "slack".
	Name() string

	// Send delivers one event to the platform.
	Send(ctx context.Context, e Event) error

	// Close releases any platform connection.
	Close() error
}
