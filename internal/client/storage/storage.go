// Package storage defines the durable per-collection storage used as the
// source of truth of the client mirror.
package storage

import (
	"context"

	"github.com/iudanet/gophsync/internal/models"
)

// Record is a stored document. Data is the JSON encoding of the entity,
// Key and Version are lifted out of it so backends can compare versions
// without decoding.
type Record struct {
	Key     string
	Data    []byte
	Version int64
}

// Query selects records either through a secondary index (Index is set)
// or by comparing a JSON field (Field is set). Value is compared as a string.
// Limit <= 0 means no limit.
type Query struct {
	Index string
	Field string
	Value string
	Limit int
}

// Database is a handle that hosts many collections of one group.
// All schemas must be registered before the first Open, schema creation
// only happens inside the open transaction.
type Database interface {
	// Register adds a collection schema. Returns ErrAlreadyOpen after Open.
	Register(schema models.CollectionSchema) error

	// Open creates missing schemas. Idempotent. A failure is fatal for the
	// handle: every later call returns an error wrapping ErrSchemaOpen.
	Open(ctx context.Context) error

	// Store returns the per-collection store. Requires Open.
	Store(name string) (Store, error)

	// Close releases the handle
	Close() error
}

// Store is the durable storage of a single collection.
type Store interface {
	// Name returns the collection name
	Name() string

	// Insert stores a new record, returns ErrAlreadyExists if the key is taken
	Insert(ctx context.Context, rec Record) error

	// Upsert stores a record unless the stored version is newer or equal.
	// Returns false when the write was skipped as stale.
	Upsert(ctx context.Context, rec Record) (bool, error)

	// UpsertAll stores records in one transaction, applying the same stale-write
	// guard per record, and returns the records that were actually written
	UpsertAll(ctx context.Context, recs []Record) ([]Record, error)

	// Get retrieves a record by key
	// Returns ErrNotFound if record doesn't exist
	Get(ctx context.Context, key string) (Record, error)

	// Query returns records matching q
	Query(ctx context.Context, q Query) ([]Record, error)

	// Scan walks all records with a cursor and returns those accepted by pred,
	// stopping as soon as limit records were collected (limit <= 0: no limit)
	Scan(ctx context.Context, pred func(Record) bool, limit int) ([]Record, error)

	// Delete removes a record unless the stored version is newer than version.
	// A zero version disables the guard. Returns the stored record and whether
	// it was deleted. A missing key is not an error.
	Delete(ctx context.Context, key string, version int64) (Record, bool, error)

	// DeleteAll is Delete for many records in one transaction.
	// Returns the records that were removed.
	DeleteAll(ctx context.Context, recs []Record) ([]Record, error)

	// Clear removes all records and index entries of the collection
	Clear(ctx context.Context) error

	// Exists reports whether a record with key is stored
	Exists(ctx context.Context, key string) (bool, error)

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)

	// LastSyncTimestamp returns the last successful sync timestamp, 0 if never synced
	LastSyncTimestamp(ctx context.Context) (int64, error)

	// SaveLastSyncTimestamp persists the last successful sync timestamp
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error

	// SchemaVersion returns the last seen schema version and whether one was stored
	SchemaVersion(ctx context.Context) (string, bool, error)

	// SaveSchemaVersion persists the current schema version
	SaveSchemaVersion(ctx context.Context, version string) error
}

// Matches reports whether rec passes q when q is evaluated by field comparison.
// Backends use it for queries without an index.
func Matches(rec Record, q Query) bool {
	if q.Field == "" {
		return true
	}
	return FieldValue(rec.Data, q.Field) == q.Value
}

// Limited reports whether a result of size n reached limit.
func Limited(n, limit int) bool {
	return limit > 0 && n >= limit
}
