package models

import "errors"

// Sentinel errors shared across the storage and engine layers. Handlers map
// them onto HTTP status codes.
var (
	// ErrNotFound means the referenced user, instrument or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds means a balance would have gone negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicate means a unique constraint was violated, e.g. an instrument
	// ticker that already exists.
	ErrDuplicate = errors.New("duplicate")

	// ErrConflict means the database aborted the transaction due to
	// serialization or deadlock and retries were exhausted.
	ErrConflict = errors.New("transaction conflict")

	// ErrValidation means the request was well-formed JSON but semantically
	// invalid.
	ErrValidation = errors.New("validation failed")
)
