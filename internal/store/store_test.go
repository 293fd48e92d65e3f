package store

import (
	"errors"
	"testing"

	"github.com/atpline/cab/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return s
}

func TestLoadSession_Empty(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadSession()
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	s := openTestStore(t)
	sess := &models.Session{
		TenantID:     "7701234567",
		Host:         "10.1.2.3",
		Port:         8080,
		BasePath:     "api/v1/driver_mode",
		Login:        "ivanov",
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
	}
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := s.LoadSession()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if got.TenantID != "7701234567" || got.AccessToken != "tok-1" {
		t.Errorf("loaded session = %+v", got)
	}
	if got.BaseURL() != "http://10.1.2.3:8080/api/v1/driver_mode" {
		t.Errorf("base url = %q", got.BaseURL())
	}
}

func TestSaveSession_SameTenantKeepsCursor(t *testing.T) {
	s := openTestStore(t)
	sess := &models.Session{TenantID: "111", Host: "h", Port: 1, AccessToken: "a"}
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.SetLastSeenID("42"); err != nil {
		t.Fatalf("set cursor: %v", err)
	}

	// Re-login to the same tenant (e.g. token refresh via full auth).
	if err := s.SaveSession(&models.Session{TenantID: "111", Host: "h", Port: 1, AccessToken: "b"}); err != nil {
		t.Fatalf("re-save session: %v", err)
	}
	id, err := s.LastSeenID()
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if id != "42" {
		t.Errorf("cursor = %q, want 42 (same tenant keeps cursor)", id)
	}
}

func TestSaveSession_TenantSwitchResetsCursor(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(&models.Session{TenantID: "111", Host: "h", Port: 1, AccessToken: "a"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.SetLastSeenID("42"); err != nil {
		t.Fatalf("set cursor: %v", err)
	}

	if err := s.SaveSession(&models.Session{TenantID: "222", Host: "h2", Port: 2, AccessToken: "b"}); err != nil {
		t.Fatalf("switch tenant: %v", err)
	}
	id, err := s.LastSeenID()
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if id != "" {
		t.Errorf("cursor = %q, want empty after tenant switch", id)
	}
}

func TestUpdateAccessToken(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateAccessToken("x"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if err := s.SaveSession(&models.Session{TenantID: "111", Host: "h", Port: 1, AccessToken: "a"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.UpdateAccessToken("fresh"); err != nil {
		t.Fatalf("update token: %v", err)
	}
	got, _ := s.LoadSession()
	if got.AccessToken != "fresh" {
		t.Errorf("access token = %q, want fresh", got.AccessToken)
	}
}

func TestDeleteSession(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSession(&models.Session{TenantID: "111", Host: "h", Port: 1, AccessToken: "a"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.SetLastSeenID("9"); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	if err := s.DeleteSession(); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after delete, got %v", err)
	}
	id, _ := s.LastSeenID()
	if id != "" {
		t.Errorf("cursor = %q, want empty after delete", id)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	id, err := s.LastSeenID()
	if err != nil {
		t.Fatalf("last seen: %v", err)
	}
	if id != "" {
		t.Errorf("initial cursor = %q, want empty", id)
	}
	if err := s.SetLastSeenID("100"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetLastSeenID("101"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	id, _ = s.LastSeenID()
	if id != "101" {
		t.Errorf("cursor = %q, want 101", id)
	}
}
