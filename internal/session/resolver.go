// Package session resolves tenant endpoints and exchanges credentials for
// tokens. It is the only writer of the persisted session; everything else
// reads through the store or the TokenSource.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atpline/cab/internal/models"
)

// DefaultBasePath is the driver-mode API prefix on every tenant backend.
const DefaultBasePath = "api/v1/driver_mode"

// expiredTokenMarker is the substring the backend puts in status.text when
// a token is no longer valid. The backend replies in Russian.
const expiredTokenMarker = "истекший"

// ErrNotProvisioned means the lookup service knows the tenant but no
// backend is provisioned for it (it reports port 0). Distinct from a
// network failure reaching the lookup service.
var ErrNotProvisioned = errors.New("session: tenant not provisioned")

// ErrInvalidCredentials means the backend rejected the login or returned
// no token.
var ErrInvalidCredentials = errors.New("session: invalid credentials")

// Endpoint is a resolved tenant backend.
type Endpoint struct {
	Host string
	Port int
	SSL  bool
}

// Tokens is the result of a successful credential exchange.
type Tokens struct {
	Access  string
	Refresh string
}

// Resolver resolves tenant identifiers and authenticates against the
// resolved backend.
type Resolver struct {
	LookupURL  string
	HTTPClient *http.Client
}

// NewResolver creates a Resolver for the given lookup service URL.
func NewResolver(lookupURL string) *Resolver {
	return &Resolver{
		LookupURL:  lookupURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ResolveEndpoint asks the lookup service which backend serves the tenant
// identified by inn. A reported port of zero means the tenant exists but
// is not provisioned, and fails with ErrNotProvisioned.
func (r *Resolver) ResolveEndpoint(ctx context.Context, inn string) (Endpoint, error) {
	if strings.TrimSpace(inn) == "" {
		return Endpoint{}, fmt.Errorf("session: tenant id is required")
	}

	payload, _ := json.Marshal(map[string]string{"inn": inn})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.LookupURL, bytes.NewReader(payload))
	if err != nil {
		return Endpoint{}, fmt.Errorf("session: lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return Endpoint{}, fmt.Errorf("session: lookup %s: %w", inn, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Endpoint{}, fmt.Errorf("session: lookup %s: read: %w", inn, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Endpoint{}, fmt.Errorf("session: lookup %s: status %d: %s", inn, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var reply struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		IsSSLPort int    `json:"is_ssl_port"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Endpoint{}, fmt.Errorf("session: lookup %s: parse: %w", inn, err)
	}
	if reply.Host == "" || reply.Port == 0 {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrNotProvisioned, inn)
	}
	return Endpoint{Host: reply.Host, Port: reply.Port, SSL: reply.IsSSLPort == 1}, nil
}

// Authenticate exchanges credentials at the endpoint's auth path. A non-2xx
// reply or a reply without a token field both fail with
// ErrInvalidCredentials; the raw response text is preserved in the error.
func (r *Resolver) Authenticate(ctx context.Context, ep Endpoint, login, password string) (Tokens, error) {
	baseURL := baseURLFor(ep)

	payload, _ := json.Marshal(map[string]string{"login": login, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth", bytes.NewReader(payload))
	if err != nil {
		return Tokens{}, fmt.Errorf("session: auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("session: auth: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tokens{}, fmt.Errorf("session: auth: read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Tokens{}, fmt.Errorf("%w: status %d: %s", ErrInvalidCredentials, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var reply struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Tokens{}, fmt.Errorf("%w: unparseable reply: %s", ErrInvalidCredentials, strings.TrimSpace(string(raw)))
	}
	if reply.Token == "" {
		return Tokens{}, fmt.Errorf("%w: no token in reply: %s", ErrInvalidCredentials, strings.TrimSpace(string(raw)))
	}
	return Tokens{Access: reply.Token, Refresh: reply.RefreshToken}, nil
}

// Refresh mints a new access token from the refresh token.
func (r *Resolver) Refresh(ctx context.Context, baseURL, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", fmt.Errorf("session: no refresh token")
	}

	payload, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("session: refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("session: refresh: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("session: refresh: read: %w", err)
	}

	var reply struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil || reply.Token == "" {
		return "", fmt.Errorf("session: refresh rejected: %s", strings.TrimSpace(string(raw)))
	}
	return reply.Token, nil
}

// ValidateToken probes the backend with a harmless chat fetch carrying no
// resumption marker. Fails closed: any network error or unparseable reply
// counts as invalid, as does a status text carrying the expired marker.
func (r *Resolver) ValidateToken(ctx context.Context, baseURL, accessToken string) bool {
	body := bytes.NewReader([]byte(`{"last_id":null}`))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/get_chat", body)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	var reply struct {
		Status struct {
			Text string `json:"text"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false
	}
	return !strings.Contains(reply.Status.Text, expiredTokenMarker)
}

// NewSession assembles a persistable session from a resolved endpoint and
// exchanged tokens.
func NewSession(inn string, ep Endpoint, login string, tok Tokens) *models.Session {
	return &models.Session{
		TenantID:     inn,
		Host:         ep.Host,
		Port:         ep.Port,
		SSL:          ep.SSL,
		BasePath:     DefaultBasePath,
		Login:        login,
		AccessToken:  tok.Access,
		RefreshToken: tok.Refresh,
	}
}

// baseURLFor mirrors models.Session.BaseURL for a not-yet-persisted endpoint.
func baseURLFor(ep Endpoint) string {
	s := models.Session{Host: ep.Host, Port: ep.Port, SSL: ep.SSL, BasePath: DefaultBasePath}
	return s.BaseURL()
}
