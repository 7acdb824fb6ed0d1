package gateway

import "errors"

var (
	// ErrConflictingMutation is returned synchronously when a delete for the
	// same key is running or pending
	ErrConflictingMutation = errors.New("conflicting mutation: delete in progress")

	// ErrSuperseded resolves the future of a pending operation that was
	// replaced by a newer one before it was sent
	ErrSuperseded = errors.New("mutation superseded by a newer one")

	// ErrCleared resolves the future of a pending operation dropped by Clear
	ErrCleared = errors.New("mutation slot cleared")
)
