package api

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned before any network I/O when no usable
// credential exists, and after a call the backend rejected as unauthorized.
var ErrUnauthenticated = errors.New("api: not authenticated")

// NetError wraps a transport-level failure: the request never produced an
// HTTP response.
type NetError struct {
	Path string
	Err  error
}

func (e *NetError) Error() string { return fmt.Sprintf("api: %s: network: %v", e.Path, e.Err) }
func (e *NetError) Unwrap() error { return e.Err }

// ServerError is a non-success HTTP status from the backend, or an explicit
// error code in an otherwise well-formed reply. The raw body is preserved
// for diagnostics.
type ServerError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: %s: server returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// MalformedError is a reply that could not be interpreted: wrong content
// type or a body that is not valid JSON. Partial data is never returned.
type MalformedError struct {
	Path        string
	ContentType string
	Err         error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("api: %s: malformed response (content-type %q): %v", e.Path, e.ContentType, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
