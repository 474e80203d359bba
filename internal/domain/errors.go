package domain

import "errors"

var (
	// ErrInvalidInput marks malformed user input. Reported back, never persisted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a remove that matched no reminder owned by the caller.
	ErrNotFound = errors.New("reminder not found")
	// ErrStorageUnavailable marks a backing store that could not be read or written.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDeliveryFailure marks a notification the transport could not deliver.
	ErrDeliveryFailure = errors.New("delivery failed")
)
