package collection

import "errors"

var (
	// ErrNotOpen is returned by operations that need Open to have succeeded
	ErrNotOpen = errors.New("collection is not open")

	// ErrUnknownCollection is returned when a name is not registered
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrDuplicateCollection is returned when a name is registered twice
	ErrDuplicateCollection = errors.New("collection already registered")

	// ErrWrongType is returned by Lookup when the registered controller has another entity type
	ErrWrongType = errors.New("collection has a different entity type")

	// ErrEmptyAck is returned when the server acknowledged a mutation without a record
	ErrEmptyAck = errors.New("mutation acknowledged without a record")
)
