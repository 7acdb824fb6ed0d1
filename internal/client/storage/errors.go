package storage

import "errors"

// Common client storage errors
var (
	// ErrNotFound indicates that a record was not found
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates that Insert hit an existing key
	ErrAlreadyExists = errors.New("record already exists")

	// ErrUnknownCollection indicates that the collection schema was never registered
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnknownIndex indicates that a query referenced an undeclared index
	ErrUnknownIndex = errors.New("unknown index")

	// ErrAlreadyOpen indicates that a schema was registered after the database was opened
	ErrAlreadyOpen = errors.New("database is already open")

	// ErrNotOpen indicates that the database has not been opened yet
	ErrNotOpen = errors.New("database is not open")

	// ErrSchemaOpen indicates that the open/upgrade transaction failed.
	// The database handle is unusable after this error.
	ErrSchemaOpen = errors.New("failed to open database schema")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
