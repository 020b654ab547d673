package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrGateway matches every *Error via errors.Is.
var ErrGateway = errors.New("gateway error")

// Error is returned by every failed platform call.
type Error struct {
	// Method is the platform method that failed (e.g. "getChatMember").
	Method string

	// StatusCode is the HTTP status, 0 when the request never got a response.
	StatusCode int

	// Code and Description are the platform's own error fields, when present.
	Code        int
	Description string

	// RetryAfter is set when the platform asked us to back off.
	RetryAfter time.Duration

	// Err is the underlying transport error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("gateway: %s: %s (code %d)", e.Method, e.Description, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("gateway: %s: %v", e.Method, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway: %s: http %d", e.Method, e.StatusCode)
	default:
		return fmt.Sprintf("gateway: %s: failed", e.Method)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrGateway }

// Retryable reports whether err is a transient platform failure:
// transport errors, rate limiting, and 5xx responses.
func Retryable(err error) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	if ge.StatusCode == 0 && ge.Err != nil {
		return true
	}
	if ge.StatusCode == http.StatusTooManyRequests || ge.Code == http.StatusTooManyRequests {
		return true
	}
	return ge.StatusCode >= 500
}
