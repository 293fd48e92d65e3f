// Package chat implements the dispatcher chat synchronization engine:
// incremental pulls keyed by the last-seen message id, optimistic sends,
// and the merge that reconciles local and server state.
package chat

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Author identifies who wrote a message. Wire values are "V" (driver,
// from "voditel") and "D" (dispatcher).
type Author string

const (
	AuthorDriver     Author = "driver"
	AuthorDispatcher Author = "dispatcher"
)

// Delivery is the local delivery state of a message. Server-fetched
// messages are always confirmed; optimistic local entries start pending
// and move to failed when the send errors, staying visible and retryable.
type Delivery string

const (
	DeliveryPending   Delivery = "pending"
	DeliveryConfirmed Delivery = "confirmed"
	DeliveryFailed    Delivery = "failed"
)

// tempPrefix marks client-generated identifiers. The server id space never
// produces this prefix, so a prefixed id always denotes an unconfirmed
// optimistic entry.
const tempPrefix = "temp-"

// WireStampFormat is the timestamp layout the backend speaks.
const WireStampFormat = "2006-01-02 15:04:05"

// Message is one chat entry as held by the engine.
type Message struct {
	ID       string
	Text     string
	FileName string
	FileURI  string // data URI for inline attachments
	Author   Author
	Stamp    time.Time
	RawStamp string
	Delivery Delivery
}

// IsTemp reports whether the id is a client-generated temporary marker.
func IsTemp(id string) bool { return strings.HasPrefix(id, tempPrefix) }

// NewTempMessage synthesizes an optimistic local message for an outgoing
// text. The id is unique and outside the server id space.
func NewTempMessage(text string, now time.Time) Message {
	return Message{
		ID:       tempPrefix + uuid.NewString(),
		Text:     text,
		Author:   AuthorDriver,
		Stamp:    now,
		RawStamp: now.Format(WireStampFormat),
		Delivery: DeliveryPending,
	}
}

// ParseStamp parses a backend timestamp. The backend usually sends the
// bare wire format; RFC3339 is tolerated for locally produced stamps.
func ParseStamp(s string) time.Time {
	if t, err := time.ParseInLocation(WireStampFormat, s, time.Local); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// wireChatItem is one message as the backend sends it. The id may arrive
// as a number or a string, under either of two field names.
type wireChatItem struct {
	ID            any    `json:"id"`
	DriverChatKey any    `json:"driver_chat_key"`
	ChatMsg       string `json:"chat_msg"`
	Autor         string `json:"autor"`
	Stamp         string `json:"stamp"`
	FileName      string `json:"file_name"`
	File          string `json:"file_"`
}

// wireChatResponse is the reply shape of /get_chat and /set_chat.
type wireChatResponse struct {
	Chat   []wireChatItem `json:"chat"`
	Status *struct {
		Text string `json:"text"`
	} `json:"status"`
}

// decodeWire maps a raw chat reply to engine messages.
func decodeWire(raw json.RawMessage) ([]Message, error) {
	var reply wireChatResponse
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(reply.Chat))
	for _, item := range reply.Chat {
		msgs = append(msgs, item.toMessage())
	}
	return msgs, nil
}

func (w wireChatItem) toMessage() Message {
	id := idString(w.ID)
	if id == "" {
		id = idString(w.DriverChatKey)
	}
	if id == "" {
		// Degenerate rows without any id key on the stamp instant, as the
		// original backend clients did.
		id = strconv.FormatInt(ParseStamp(w.Stamp).UnixMilli(), 10)
	}

	author := AuthorDispatcher
	if w.Autor == "V" {
		author = AuthorDriver
	}

	msg := Message{
		ID:       id,
		Text:     w.ChatMsg,
		FileName: w.FileName,
		Author:   author,
		Stamp:    ParseStamp(w.Stamp),
		RawStamp: w.Stamp,
		Delivery: DeliveryConfirmed,
	}
	if w.File != "" {
		msg.FileURI = "data:image/jpeg;base64," + w.File
	}
	return msg
}

// idString normalizes the backend's loosely typed id fields.
func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
