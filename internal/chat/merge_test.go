package chat

import (
	"reflect"
	"testing"
	"time"
)

func at(sec int) time.Time {
	return time.Date(2026, 3, 10, 12, 0, sec, 0, time.Local)
}

func confirmed(id, text string, stamp time.Time) Message {
	return Message{ID: id, Text: text, Author: AuthorDispatcher, Stamp: stamp, Delivery: DeliveryConfirmed}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMerge_TempEntriesArePruned(t *testing.T) {
	existing := []Message{
		{ID: "temp-1", Text: "hi", Author: AuthorDriver, Stamp: at(5), Delivery: DeliveryPending},
	}
	incoming := []Message{confirmed("42", "hi", at(6))}

	got := Merge(existing, incoming)
	if len(got) != 1 {
		t.Fatalf("merged %d messages, want 1: %v", len(got), ids(got))
	}
	if got[0].ID != "42" {
		t.Errorf("surviving id = %q, want 42", got[0].ID)
	}
	for _, m := range got {
		if IsTemp(m.ID) {
			t.Errorf("temp id %q survived merge", m.ID)
		}
	}
}

func TestMerge_FirstOccurrenceWins(t *testing.T) {
	existing := []Message{confirmed("7", "original", at(1))}
	incoming := []Message{confirmed("7", "duplicate", at(1)), confirmed("8", "next", at(2))}

	got := Merge(existing, incoming)
	if len(got) != 2 {
		t.Fatalf("merged %d messages, want 2", len(got))
	}
	if got[0].Text != "original" {
		t.Errorf("duplicate id displaced the existing entry: %q", got[0].Text)
	}
}

func TestMerge_SortsAscendingByStamp(t *testing.T) {
	existing := []Message{confirmed("3", "", at(30))}
	incoming := []Message{confirmed("1", "", at(10)), confirmed("2", "", at(20))}

	got := Merge(existing, incoming)
	want := []string{"1", "2", "3"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Stamp.Before(got[i-1].Stamp) {
			t.Errorf("timestamps decrease at index %d", i)
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	a := []Message{confirmed("1", "a", at(1)), confirmed("2", "b", at(2))}
	b := []Message{confirmed("2", "b", at(2)), confirmed("3", "c", at(3))}

	once := Merge(a, b)
	twice := Merge(once, b)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("repeated merge diverged:\nonce:  %v\ntwice: %v", ids(once), ids(twice))
	}
}

func TestMerge_DuplicateBatchConverges(t *testing.T) {
	batch := []Message{confirmed("1", "a", at(1)), confirmed("2", "b", at(2))}

	got := Merge(Merge(nil, batch), batch)
	if len(got) != 2 {
		t.Fatalf("merged %d messages, want 2: %v", len(got), ids(got))
	}
}

func TestMerge_SkipsEmptyIDs(t *testing.T) {
	incoming := []Message{{ID: "", Text: "ghost", Stamp: at(1)}, confirmed("1", "real", at(2))}
	got := Merge(nil, incoming)
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("merge kept id-less rows: %v", ids(got))
	}
}
