package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func staticTokens(tok string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("no session")
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Opts{BaseURL: srv.URL, TokenSource: staticTokens("tok-abc")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestNewClient_Required(t *testing.T) {
	if _, err := NewClient(Opts{TokenSource: staticTokens("x")}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewClient(Opts{BaseURL: "http://x"}); err == nil {
		t.Error("expected error for missing token source")
	}
}

func TestCall_SetsBearerAndJSON(t *testing.T) {
	var gotAuth, gotCT, gotBody string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))

	raw, err := c.Call(context.Background(), "/get_info", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotCT != "application/json" {
		t.Errorf("content-type = %q", gotCT)
	}
	if gotBody != "{}" {
		t.Errorf("nil body should be sent as empty object, got %q", gotBody)
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil || !reply.OK {
		t.Errorf("reply = %s, err = %v", raw, err)
	}
}

func TestCall_NoToken_NoNetworkCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c, err := NewClient(Opts{BaseURL: srv.URL, TokenSource: failingTokenSource{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Call(context.Background(), "/get_chat", nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no network call, server saw %d", calls)
	}
}

func TestCall_ServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	_, err := c.Call(context.Background(), "/set_status", map[string]string{"a": "b"})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError || se.Body != "boom" {
		t.Errorf("server error = %+v", se)
	}
}

func TestCall_UnauthorizedStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token rejected", http.StatusUnauthorized)
	}))
	_, err := c.Call(context.Background(), "/get_chat", nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for 401, got %v", err)
	}
}

func TestCall_MalformedContentType(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>login page</html>")
	}))
	_, err := c.Call(context.Background(), "/get_info", nil)
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
}

func TestCall_MalformedBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"chat": [`)
	}))
	_, err := c.Call(context.Background(), "/get_chat", nil)
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
}

func TestCall_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c, err := NewClient(Opts{BaseURL: srv.URL, TokenSource: staticTokens("t")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Call(context.Background(), "/get_info", nil)
	var ne *NetError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetError, got %v", err)
	}
}

func TestUpload_Multipart(t *testing.T) {
	var gotAuth, gotName string
	var gotData []byte
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotData, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true}`)
	}))

	_, err := c.Upload(context.Background(), "/send_file", "pod.jpg", strings.NewReader("jpegdata"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotName != "pod.jpg" || string(gotData) != "jpegdata" {
		t.Errorf("file = %q (%q)", gotName, gotData)
	}
}
