package attribution

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistence wraps failures of the underlying event store.
	ErrPersistence = errors.New("event store unavailable")
)
