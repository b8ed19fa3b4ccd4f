package api

import (
	"errors"
	"fmt"
)

// TransportError indicates a failed HTTP call: network failure, a non-2xx
// status, or an unreadable body. It is always recoverable: callers leave
// their state unchanged and may surface a transient message to the user.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates a response that did not match the expected
// shape. It is treated like a TransportError for recovery purposes; the
// raw body is kept for diagnosis.
type ProtocolError struct {
	Op   string
	Body string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError indicates the bearer token was rejected (HTTP 401).
type AuthError struct {
	Op string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (401): check your API token", e.Op)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsNotFound reports whether err is a TransportError carrying HTTP 404,
// which the snapshot fetch uses to detect missing endpoints on older
// backends.
func IsNotFound(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr) && tErr.Status == 404
}
