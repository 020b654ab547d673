package invite

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("invite token not found")

	// ErrPersistence wraps failures of the underlying token store.
	ErrPersistence = errors.New("invite store unavailable")
)
