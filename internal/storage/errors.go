package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. History stores are append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorrupt is returned when persisted state exists but cannot be decoded.
	ErrCorrupt = errors.New("corrupt persisted state")

	// ErrLocked is returned when another run holds the learner lock.
	ErrLocked = errors.New("learner state is locked by another run")
)
