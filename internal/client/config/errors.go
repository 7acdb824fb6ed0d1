package config

import "errors"

var (
	// ErrNoCollections is returned when the file declares no collections
	ErrNoCollections = errors.New("no collections configured")

	// ErrDuplicateCollection is returned when two collections share a name
	ErrDuplicateCollection = errors.New("duplicate collection")

	// ErrUnknownRule is returned for an unsupported validation rule type
	ErrUnknownRule = errors.New("unknown validation rule")
)
