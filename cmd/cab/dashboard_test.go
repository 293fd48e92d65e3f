package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atpline/cab/internal/chat"
	"github.com/atpline/cab/internal/store"
	"github.com/atpline/cab/internal/trip"
)

// fakeGateway serves canned replies. When gate is set, /get_info parks
// until the gate closes, signalling entered on arrival.
type fakeGateway struct {
	mu      sync.Mutex
	replies map[string]string
	gate    chan struct{}
	entered chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		replies: map[string]string{},
		entered: make(chan struct{}, 1),
	}
}

func (f *fakeGateway) Call(_ context.Context, path string, _ any) (json.RawMessage, error) {
	f.mu.Lock()
	gate := f.gate
	reply, ok := f.replies[path]
	f.mu.Unlock()

	if path == "/get_info" && gate != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-gate
	}
	if !ok {
		return nil, fmt.Errorf("unexpected call to %s", path)
	}
	return json.RawMessage(reply), nil
}

func (f *fakeGateway) Upload(context.Context, string, string, io.Reader) (json.RawMessage, error) {
	return nil, fmt.Errorf("unexpected upload")
}

func testLiveState(t *testing.T, fg *fakeGateway) *liveState {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	eng, err := chat.NewEngine(chat.Opts{Client: fg, Store: st, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &liveState{
		eng:   eng,
		trips: trip.NewService(fg, zerolog.Nop()),
	}
}

func stockReplies(fg *fakeGateway) {
	fg.replies["/get_info"] = `{
		"driver": {"fio": "Ivanov I.I."},
		"route": [{"mam": "KamAZ A123", "razn_id": "100", "track": [
			{"client": "Acme", "client_id": "c1", "razn_zak_id": "500"}
		]}]
	}`
	fg.replies["/get_status_dir"] = `{"status_dir":[
		{"status_id":"1","name":"Loading"},
		{"status_id":"2","name":"En route"}
	]}`
	fg.replies["/get_status"] = `{"status_list":[
		{"stamp":"2026-03-10 08:00:00","status":"Loading"},
		{"stamp":"2026-03-10 09:30:00","status":"En route"}
	]}`
}

func TestLiveState_CarriesFormReferenceData(t *testing.T) {
	fg := newFakeGateway()
	stockReplies(fg)
	p := testLiveState(t, fg)

	state, err := p.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}

	if len(state.Catalog) != 2 {
		t.Errorf("catalog = %d entries, want 2", len(state.Catalog))
	}
	if len(state.Clients) != 1 || state.Clients[0].ID != "c1" {
		t.Errorf("clients = %+v", state.Clients)
	}
	if state.SelectedStatusID != "2" {
		t.Errorf("selected status = %q, want id of the newest entry", state.SelectedStatusID)
	}
}

func TestLiveState_ServesStaleBoardWhileRefreshing(t *testing.T) {
	fg := newFakeGateway()
	stockReplies(fg)
	p := testLiveState(t, fg)
	p.ttl = time.Nanosecond

	if _, err := p.State(context.Background()); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	fg.mu.Lock()
	fg.gate = make(chan struct{})
	fg.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.State(context.Background())
		close(done)
	}()

	select {
	case <-fg.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never reached the backend")
	}

	// With a refresh in flight, another caller gets the cached board
	// without waiting on the backend.
	got := make(chan cachedView, 1)
	go func() {
		state, err := p.State(context.Background())
		if err != nil {
			t.Errorf("concurrent state: %v", err)
		}
		got <- cachedView{state.Driver.FullName, state.SelectedStatusID}
	}()

	select {
	case g := <-got:
		if g.driver != "Ivanov I.I." {
			t.Errorf("driver = %q, want cached board", g.driver)
		}
		if g.selected != "2" {
			t.Errorf("selected status = %q", g.selected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state call serialized behind the in-flight refresh")
	}

	close(fg.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refreshing call never finished")
	}
}

type cachedView struct {
	driver   string
	selected string
}
