package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/atpline/cab/internal/chat"
	"github.com/atpline/cab/internal/trip"
)

// DigestFunc builds a periodic digest event. Returning ok=false
// suppresses the digest for this cycle.
type DigestFunc func(ctx context.Context) (Event, bool, error)

// Bridge fans events out to every configured adapter. One failing
// adapter never blocks the others; failures are logged and the event is
// dropped for that platform.
type Bridge struct {
	adapters []Adapter
	log      zerolog.Logger
}

// NewBridge creates a Bridge over the given adapters.
func NewBridge(log zerolog.Logger, adapters ...Adapter) *Bridge {
	return &Bridge{adapters: adapters, log: log}
}

// Adapters returns the platform names the bridge delivers to.
func (b *Bridge) Adapters() []string {
	names := make([]string, len(b.adapters))
	for i, a := range b.adapters {
		names[i] = a.Name()
	}
	return names
}

// Broadcast delivers one event to every adapter.
func (b *Bridge) Broadcast(ctx context.Context, e Event) {
	for _, a := range b.adapters {
		if err := a.Send(ctx, e); err != nil {
			b.log.Error().Err(err).Str("adapter", a.Name()).Str("kind", string(e.Kind)).
				Msg("notify: send failed")
		}
	}
}

// Run consumes chat messages until the channel closes or ctx is
// cancelled, forwarding dispatcher-authored ones. A nil statuses channel
// disables status-change forwarding. When digestExpr is a valid 5-field
// cron expression and digest is non-nil, digest events fire on that
// schedule as well.
func (b *Bridge) Run(ctx context.Context, msgs <-chan chat.Message, statuses <-chan trip.StatusEvent, digestExpr string, digest DigestFunc) {
	var digestCh <-chan time.Time
	var timer *time.Timer
	if digest != nil && digestExpr != "" {
		if d := nextCronDuration(digestExpr); d > 0 {
			timer = time.NewTimer(d)
			defer timer.Stop()
			digestCh = timer.C
		} else {
			b.log.Warn().Str("cron", digestExpr).Msg("notify: invalid digest schedule, digests disabled")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if m.Author != chat.AuthorDispatcher {
				continue
			}
			b.Broadcast(ctx, Event{
				Kind:   KindChatMessage,
				Title:  "Dispatcher",
				Body:   chatBody(m),
				Author: string(m.Author),
				Stamp:  m.Stamp,
			})
		case s, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			b.Broadcast(ctx, Event{
				Kind:  KindStatusChange,
				Title: "Status change",
				Body:  statusBody(s),
				Stamp: time.Now(),
			})
		case <-digestCh:
			e, ok, err := digest(ctx)
			if err != nil {
				b.log.Error().Err(err).Msg("notify: build digest")
			} else if ok {
				b.Broadcast(ctx, e)
			}
			timer.Reset(nextCronDuration(digestExpr))
		}
	}
}

// Close shuts down every adapter, logging failures.
func (b *Bridge) Close() {
	for _, a := range b.adapters {
		if err := a.Close(); err != nil {
			b.log.Error().Err(err).Str("adapter", a.Name()).Msg("notify: close failed")
		}
	}
}

func statusBody(s trip.StatusEvent) string {
	body := s.Entry.Status + " at " + s.Entry.Stamp
	if s.Entry.Volume != "" {
		body += ", volume " + s.Entry.Volume
	}
	if s.Entry.Note != "" {
		body += "\n" + s.Entry.Note
	}
	return body
}

func chatBody(m chat.Message) string {
	if m.Text != "" {
		return m.Text
	}
	if m.FileName != "" {
		return "sent a file: " + m.FileName
	}
	return "(empty message)"
}
