package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atpline/cab/internal/store"
)

// DefaultPollInterval is how often the engine re-pulls the chat.
const DefaultPollInterval = 10 * time.Second

// Caller is the slice of the API gateway the engine uses.
type Caller interface {
	Call(ctx context.Context, path string, body any) (json.RawMessage, error)
	Upload(ctx context.Context, path, filename string, r io.Reader) (json.RawMessage, error)
}

// Attachment is a file queued for upload alongside the next send.
type Attachment struct {
	Name string
	Data []byte
}

// SendReport collects the per-part outcome of a send: the text path and
// each attachment fail independently, and one failed file never blocks
// the rest.
type SendReport struct {
	TextErr  error
	FileErrs map[string]error
}

// Err folds the report into a single error for callers that only need
// success/failure.
func (r SendReport) Err() error {
	if r.TextErr != nil {
		return r.TextErr
	}
	for name, err := range r.FileErrs {
		return fmt.Errorf("chat: upload %s: %w", name, err)
	}
	return nil
}

// Engine owns the visible message list and its reconciliation with the
// backend. One engine per session; all methods are safe for concurrent
// use, and pulls are serialized so polling never overlaps.
type Engine struct {
	client   Caller
	st       *store.Store
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	pullMu sync.Mutex // serializes network pulls

	mu         sync.Mutex
	messages   []Message
	lastSeenID string
	atBottom   bool
	pending    []Attachment
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Client   Caller
	Store    *store.Store
	Interval time.Duration  // defaults to DefaultPollInterval
	Logger   zerolog.Logger // defaults to a no-op logger
}

// NewEngine creates an Engine, resuming from the persisted chat cursor.
func NewEngine(opts Opts) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("chat: client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: store is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	lastSeen, err := opts.Store.LastSeenID()
	if err != nil {
		return nil, err
	}
	return &Engine{
		client:     opts.Client,
		st:         opts.Store,
		interval:   interval,
		log:        opts.Logger,
		now:        time.Now,
		lastSeenID: lastSeen,
		atBottom:   true,
	}, nil
}

// Messages returns a copy of the current merged list, ascending by stamp.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]Message, len(e.messages))
	copy(cp, e.messages)
	return cp
}

// LastSeenID returns the current resumption marker.
func (e *Engine) LastSeenID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeenID
}

// AtBottom reports whether the consumer is scrolled to the end of the
// list. The engine only tracks the flag; views use it to decide whether
// new messages may auto-scroll.
func (e *Engine) AtBottom() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atBottom
}

// SetAtBottom records the consumer's scroll position.
func (e *Engine) SetAtBottom(b bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.atBottom = b
}

// Pull fetches messages newer than the last-seen marker, merges them in,
// and advances the persisted cursor. Returns the incoming batch. Pulls
// are serialized: a second Pull blocks until the first finishes.
func (e *Engine) Pull(ctx context.Context) ([]Message, error) {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	var body any
	if last := e.LastSeenID(); last != "" {
		body = map[string]string{"last_id": last}
	}

	raw, err := e.client.Call(ctx, "/get_chat", body)
	if err != nil {
		return nil, err
	}
	incoming, err := decodeWire(raw)
	if err != nil {
		return nil, fmt.Errorf("chat: decode /get_chat reply: %w", err)
	}
	if len(incoming) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	e.messages = mergeKeepingFailed(e.messages, incoming)
	newLast := chronologicallyLast(incoming).ID
	e.lastSeenID = newLast
	e.mu.Unlock()

	if err := e.st.SetLastSeenID(newLast); err != nil {
		e.log.Warn().Err(err).Msg("chat: persist cursor")
	}
	return incoming, nil
}

// Send delivers text and all queued attachments. The text is appended
// optimistically first; on success the server's confirmed reply replaces
// the temporary entry, on failure the entry is marked failed and stays
// visible for Retry. Attachments upload sequentially and independently;
// the queue is cleared after every entry has been attempted.
func (e *Engine) Send(ctx context.Context, text string) SendReport {
	report := SendReport{FileErrs: map[string]error{}}

	if text != "" {
		temp := NewTempMessage(text, e.now())
		e.mu.Lock()
		e.messages = append(e.messages, temp)
		e.mu.Unlock()

		report.TextErr = e.deliverText(ctx, temp.ID, text)
	}

	e.mu.Lock()
	queue := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, a := range queue {
		if err := e.uploadFile(ctx, a); err != nil {
			report.FileErrs[a.Name] = err
		}
	}
	return report
}

// deliverText posts the message and merges the confirmed reply, which
// prunes the optimistic entry. On failure the entry is marked failed.
func (e *Engine) deliverText(ctx context.Context, tempID, text string) error {
	raw, err := e.client.Call(ctx, "/set_chat", map[string]string{"msg": text})
	if err != nil {
		e.markFailed(tempID)
		return err
	}
	confirmed, err := decodeWire(raw)
	if err != nil {
		e.markFailed(tempID)
		return fmt.Errorf("chat: decode /set_chat reply: %w", err)
	}

	e.mu.Lock()
	e.messages = mergeKeepingFailed(e.messages, confirmed)
	e.mu.Unlock()
	return nil
}

// uploadFile sends one attachment and, on success, appends a local
// confirmed entry referencing it. The server may later return its own row
// for the file; ids differ, which mirrors the original client's behavior.
func (e *Engine) uploadFile(ctx context.Context, a Attachment) error {
	if _, err := e.client.Upload(ctx, "/send_file", a.Name, bytes.NewReader(a.Data)); err != nil {
		return err
	}
	now := e.now()
	e.mu.Lock()
	e.messages = append(e.messages, Message{
		ID:       uuid.NewString(),
		FileName: a.Name,
		Author:   AuthorDriver,
		Stamp:    now,
		RawStamp: now.Format(WireStampFormat),
		Delivery: DeliveryConfirmed,
	})
	e.mu.Unlock()
	return nil
}

// QueueAttachment adds a file to the queue consumed by the next Send.
func (e *Engine) QueueAttachment(a Attachment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, a)
}

// PendingAttachments lists the names of queued files.
func (e *Engine) PendingAttachments() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.pending))
	for i, a := range e.pending {
		names[i] = a.Name
	}
	return names
}

// Retry re-sends a failed optimistic message.
func (e *Engine) Retry(ctx context.Context, id string) error {
	e.mu.Lock()
	var text string
	found := false
	for i := range e.messages {
		if e.messages[i].ID == id && e.messages[i].Delivery == DeliveryFailed {
			e.messages[i].Delivery = DeliveryPending
			text = e.messages[i].Text
			found = true
			break
		}
	}
	e.mu.Unlock()
	if !found {
		return fmt.Errorf("chat: no failed message with id %s", id)
	}
	return e.deliverText(ctx, id, text)
}

// markFailed flips an optimistic entry to the failed state.
func (e *Engine) markFailed(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.messages {
		if e.messages[i].ID == id {
			e.messages[i].Delivery = DeliveryFailed
			return
		}
	}
}

// Run starts the polling loop: one awaited initial pull, then a fixed
// ticker until ctx is cancelled. Newly arrived messages are emitted on
// the returned channel, which closes on teardown. Poll failures are
// logged and retried on the next tick; state is left unchanged.
func (e *Engine) Run(ctx context.Context) <-chan Message {
	ch := make(chan Message, 64)
	go func() {
		defer close(ch)

		emit := func(msgs []Message) {
			for _, m := range msgs {
				select {
				case ch <- m:
				case <-ctx.Done():
					return
				}
			}
		}

		if msgs, err := e.Pull(ctx); err != nil {
			e.log.Warn().Err(err).Msg("chat: initial pull")
		} else {
			emit(msgs)
		}

		// The ticker starts only after the initial pull has completed, so
		// in-flight requests never overlap.
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				msgs, err := e.Pull(ctx)
				if err != nil {
					e.log.Warn().Err(err).Msg("chat: poll")
					continue
				}
				emit(msgs)
			}
		}
	}()
	return ch
}

// mergeKeepingFailed applies Merge but keeps failed optimistic entries
// visible: unlike pending ones they are not superseded by any server row,
// and the user must be able to see and retry them.
func mergeKeepingFailed(existing, incoming []Message) []Message {
	var failed []Message
	for _, m := range existing {
		if IsTemp(m.ID) && m.Delivery == DeliveryFailed {
			failed = append(failed, m)
		}
	}
	merged := Merge(existing, incoming)
	if len(failed) == 0 {
		return merged
	}
	merged = append(merged, failed...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Stamp.Before(merged[j].Stamp)
	})
	return merged
}

// chronologicallyLast returns the incoming message with the greatest
// stamp; ties resolve to the later batch position.
func chronologicallyLast(batch []Message) Message {
	last := batch[0]
	for _, m := range batch[1:] {
		if !m.Stamp.Before(last.Stamp) {
			last = m
		}
	}
	return last
}
