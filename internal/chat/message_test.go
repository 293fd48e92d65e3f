package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecodeWire_IDVariants(t *testing.T) {
	raw := json.RawMessage(`{"chat":[
		{"id":17,"chat_msg":"numeric","autor":"D","stamp":"2026-03-10 12:00:01"},
		{"id":"18","chat_msg":"string","autor":"V","stamp":"2026-03-10 12:00:02"},
		{"driver_chat_key":19,"chat_msg":"alt key","autor":"D","stamp":"2026-03-10 12:00:03"}
	]}`)
	msgs, err := decodeWire(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"17", "18", "19"}
	for i, m := range msgs {
		if m.ID != want[i] {
			t.Errorf("msgs[%d].ID = %q, want %q", i, m.ID, want[i])
		}
		if m.Delivery != DeliveryConfirmed {
			t.Errorf("msgs[%d].Delivery = %q", i, m.Delivery)
		}
	}
	if msgs[0].Author != AuthorDispatcher || msgs[1].Author != AuthorDriver {
		t.Errorf("author mapping wrong: %q %q", msgs[0].Author, msgs[1].Author)
	}
}

func TestDecodeWire_MissingIDFallsBackToStamp(t *testing.T) {
	raw := json.RawMessage(`{"chat":[{"chat_msg":"x","autor":"D","stamp":"2026-03-10 12:00:01"}]}`)
	msgs, err := decodeWire(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msgs[0].ID == "" {
		t.Error("id-less row should synthesize an id from the stamp")
	}
}

func TestDecodeWire_InlineFile(t *testing.T) {
	raw := json.RawMessage(`{"chat":[{"id":"1","autor":"D","stamp":"2026-03-10 12:00:01","file_name":"cmr.jpg","file_":"aGVsbG8="}]}`)
	msgs, err := decodeWire(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msgs[0].FileName != "cmr.jpg" {
		t.Errorf("file name = %q", msgs[0].FileName)
	}
	if !strings.HasPrefix(msgs[0].FileURI, "data:image/jpeg;base64,") {
		t.Errorf("file uri = %q", msgs[0].FileURI)
	}
}

func TestParseStamp(t *testing.T) {
	if got := ParseStamp("2026-03-10 12:00:01"); got.IsZero() {
		t.Error("wire format should parse")
	}
	if got := ParseStamp("2026-03-10T12:00:01Z"); got.IsZero() {
		t.Error("RFC3339 should parse")
	}
	if got := ParseStamp("garbage"); !got.IsZero() {
		t.Errorf("garbage parsed to %v", got)
	}
}

func TestNewTempMessage(t *testing.T) {
	now := time.Now()
	m := NewTempMessage("hi", now)
	if !IsTemp(m.ID) {
		t.Errorf("temp id = %q", m.ID)
	}
	if m.Delivery != DeliveryPending || m.Author != AuthorDriver {
		t.Errorf("message = %+v", m)
	}
	other := NewTempMessage("hi", now)
	if other.ID == m.ID {
		t.Error("temp ids must be unique")
	}
}
