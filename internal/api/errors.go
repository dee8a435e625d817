// Package api builds authenticated calls to the Wanderlore backend. It owns
// the request dispatcher (single-flight deduplication, refresh-and-retry on
// authorization failure), the domain operations on top of it, and the
// geospatial response cache integration.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for response classification.
// Use errors.Is(err, api.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("api: bad request")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrThrottled    = errors.New("api: throttled")
	ErrServerError  = errors.New("api: server error")

	// ErrUnreachable is a transport-level failure: no response at all.
	// Non-critical reads (preview content) degrade to empty results
	// instead of propagating it.
	ErrUnreachable = errors.New("api: backend unreachable")

	// ErrBadPayload means the server answered 2xx with a body that does
	// not match the expected shape.
	ErrBadPayload = errors.New("api: malformed server payload")
)

// APIError wraps a sentinel error with the HTTP status code and the
// server-provided message when one was parseable.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isAuthFailure reports whether the status code means the token was not
// accepted and a forced refresh plus one retry is warranted.
func isAuthFailure(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// serverMessage extracts the server's error message from a response body.
// Falls back to the raw body when it is not the expected JSON shape.
func serverMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}

	return string(body)
}
