// Package api implements the authenticated request gateway: every backend
// call goes through Client, which owns the bearer credential, the JSON
// framing, and the error taxonomy. Callers decide what to do on failure;
// the gateway never retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 30 * time.Second

// Client calls the tenant backend with bearer authentication. The base URL
// and token source are injected explicitly; there is no ambient session.
type Client struct {
	baseURL string
	tokens  oauth2.TokenSource
	httpc   *http.Client
}

// Opts holds parameters for creating a Client.
type Opts struct {
	BaseURL     string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client // defaults to a client with DefaultTimeout
}

// NewClient creates a gateway Client.
func NewClient(opts Opts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	if opts.TokenSource == nil {
		return nil, fmt.Errorf("api: token source is required")
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  opts.TokenSource,
		httpc:   httpc,
	}, nil
}

// Call POSTs a JSON body to path and returns the parsed JSON reply.
// A nil body is sent as an empty object. Fails fast with ErrUnauthenticated
// when no token is available, before any network I/O.
func (c *Client) Call(ctx context.Context, path string, body any) (json.RawMessage, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if body == nil {
		body = struct{}{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("api: %s: encode request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("api: %s: build request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, path)
}

// Upload POSTs a single file as a multipart request with the bearer header.
func (c *Client) Upload(ctx context.Context, path, filename string, r io.Reader) (json.RawMessage, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("api: %s: multipart: %w", path, err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("api: %s: read %s: %w", path, filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("api: %s: multipart: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("api: %s: build request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, path)
}

// do executes the request and applies the shared response policy:
// non-2xx is a ServerError (401/403 additionally match ErrUnauthenticated),
// a non-JSON or unparseable body is a MalformedError.
func (c *Client) do(req *http.Request, path string) (json.RawMessage, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &NetError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetError{Path: path, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrUnauthenticated, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "application/json") && !strings.Contains(ct, "text/json") {
		return nil, &MalformedError{Path: path, ContentType: ct, Err: fmt.Errorf("expected JSON")}
	}
	if !json.Valid(raw) {
		return nil, &MalformedError{Path: path, ContentType: ct, Err: fmt.Errorf("invalid JSON body")}
	}
	return json.RawMessage(raw), nil
}
