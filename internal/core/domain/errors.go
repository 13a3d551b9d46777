package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPrecondition marks failures detected before any network attempt.
	ErrPrecondition      = errors.New("precondition failed")
	ErrMissingIdentity   = fmt.Errorf("missing subject identity: %w", ErrPrecondition)
	ErrPayloadTooLarge   = fmt.Errorf("payload too large: %w", ErrPrecondition)
	ErrOffline           = fmt.Errorf("network offline: %w", ErrPrecondition)
	ErrDecode            = errors.New("image decode failed")
	ErrTemporary         = errors.New("temporary failure")
	ErrTimeout           = fmt.Errorf("request timeout: %w", ErrTemporary)
	ErrFatalTransport    = errors.New("request rejected by backend")
	ErrMalformedResponse = errors.New("malformed backend response")
	ErrCancelled         = errors.New("operation cancelled")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// ContextError wraps a context error from the caller. An expired deadline is a
// server-side budget running out and reads as ErrTimeout; only an explicit
// cancel reads as ErrCancelled.
func ContextError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrTimeout, operation, err)
	}
	return WrapError(ErrCancelled, operation, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// BackendError carries the {code, message} body of a rejected backend request.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendError) Error() string {
	if e == nil {
		return "backend error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend status %d [%s]: %s", e.StatusCode, e.Code, msg)
}

func (e *BackendError) Unwrap() error {
	return ErrFatalTransport
}
