package txn

import "errors"

var (
	// ErrNotFound is returned when a key or transaction does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write or commit would invalidate
	// an observation made by another active transaction or when a key
	// was committed after the transaction's snapshot was taken
	ErrConflict = errors.New("conflict")
	// ErrInvalidState is returned for operations on a transaction
	// that was already committed or aborted
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable is returned when no more transactions can be opened
	ErrUnavailable = errors.New("unavailable")
	// ErrClosed is returned after the coordinator was closed
	ErrClosed = errors.New("coordinator closed")
)
