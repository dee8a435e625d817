// Package identity is a JSON-over-HTTPS client for the Wanderlore identity
// service: sign-in, sign-up, confirmation, password recovery, and token
// refresh. Errors from the service are mapped to sentinel errors so callers
// can branch on error kind with errors.Is.
package identity

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity service error codes.
var (
	ErrNotAuthorized    = errors.New("identity: incorrect username or password")
	ErrUserNotConfirmed = errors.New("identity: account not confirmed")
	ErrUserNotFound     = errors.New("identity: user not found")
	ErrUserExists       = errors.New("identity: username already taken")
	ErrCodeMismatch     = errors.New("identity: invalid confirmation code")
	ErrCodeExpired      = errors.New("identity: confirmation code expired")
	ErrRefreshExpired   = errors.New("identity: refresh token expired or revoked")
	ErrNoLiveSession    = errors.New("identity: no live provider session")
)

// Service error codes on the wire.
const (
	codeNotAuthorized    = "not_authorized"
	codeUserNotConfirmed = "user_not_confirmed"
	codeUserNotFound     = "user_not_found"
	codeUserExists       = "username_exists"
	codeCodeMismatch     = "code_mismatch"
	codeCodeExpired      = "expired_code"
	codeRefreshExpired   = "refresh_token_expired"
)

// ServiceError wraps a sentinel with the raw code and message returned by
// the identity service, for logging and user-facing detail.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("identity: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// classifyCode maps a service error code to a sentinel error.
// Unknown codes return nil; the ServiceError still carries code and message.
func classifyCode(code string) error {
	switch code {
	case codeNotAuthorized:
		return ErrNotAuthorized
	case codeUserNotConfirmed:
		return ErrUserNotConfirmed
	case codeUserNotFound:
		return ErrUserNotFound
	case codeUserExists:
		return ErrUserExists
	case codeCodeMismatch:
		return ErrCodeMismatch
	case codeCodeExpired:
		return ErrCodeExpired
	case codeRefreshExpired:
		return ErrRefreshExpired
	default:
		return nil
	}
}
