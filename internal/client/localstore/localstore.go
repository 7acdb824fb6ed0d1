// Package localstore is the typed view of a collection storage.
// Entities are stored as JSON documents, their key and version are
// lifted into the storage record so stale writes are detected without decoding.
package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// LocalStore stores entities of type T in a storage.Store
type LocalStore[T models.Entity] struct {
	store     storage.Store
	keyFields []string
}

// New wraps a per-collection store. keyFields are the unique key fields of the
// collection, bound to entities that derive their key from the schema.
func New[T models.Entity](store storage.Store, keyFields ...string) *LocalStore[T] {
	return &LocalStore[T]{store: store, keyFields: keyFields}
}

// Name returns the collection name
func (l *LocalStore[T]) Name() string {
	return l.store.Name()
}

// Insert stores a new entity, fails with storage.ErrAlreadyExists
func (l *LocalStore[T]) Insert(ctx context.Context, entity T) error {
	rec, err := Encode(models.BindKey(entity, l.keyFields))
	if err != nil {
		return err
	}
	return l.store.Insert(ctx, rec)
}

// Upsert stores an entity. Returns false if the stored version was newer or equal.
func (l *LocalStore[T]) Upsert(ctx context.Context, entity T) (bool, error) {
	rec, err := Encode(models.BindKey(entity, l.keyFields))
	if err != nil {
		return false, err
	}
	return l.store.Upsert(ctx, rec)
}

// UpsertAll stores entities in one transaction and returns the applied ones
func (l *LocalStore[T]) UpsertAll(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	recs := make([]storage.Record, 0, len(entities))
	for _, e := range entities {
		rec, err := Encode(models.BindKey(e, l.keyFields))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	applied, err := l.store.UpsertAll(ctx, recs)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](applied, l.keyFields...)
}

// Get returns the entity stored under key
func (l *LocalStore[T]) Get(ctx context.Context, key string) (T, error) {
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](rec, l.keyFields...)
}

// Query returns entities matching q
func (l *LocalStore[T]) Query(ctx context.Context, q storage.Query) ([]T, error) {
	recs, err := l.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](recs, l.keyFields...)
}

// Scan returns entities accepted by pred, at most limit of them
func (l *LocalStore[T]) Scan(ctx context.Context, pred func(T) bool, limit int) ([]T, error) {
	var decodeErr error
	var decoded []T

	// Декодируем внутри предиката, чтобы лимит срабатывал на уровне курсора
	_, err := l.store.Scan(ctx, func(rec storage.Record) bool {
		if decodeErr != nil {
			return false
		}
		e, err := Decode[T](rec, l.keyFields...)
		if err != nil {
			decodeErr = err
			return false
		}
		if pred != nil && !pred(e) {
			return false
		}
		decoded = append(decoded, e)
		return true
	}, limit)
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	return decoded, nil
}

// All returns every stored entity
func (l *LocalStore[T]) All(ctx context.Context) ([]T, error) {
	return l.Scan(ctx, nil, 0)
}

// Delete removes the entity unless the stored version is newer than the entity's.
// Returns the stored entity and whether it was deleted.
func (l *LocalStore[T]) Delete(ctx context.Context, entity T) (T, bool, error) {
	var zero T

	entity = models.BindKey(entity, l.keyFields)
	rec, deleted, err := l.store.Delete(ctx, entity.Key(), entity.Version())
	if err != nil {
		return zero, false, err
	}
	if rec.Data == nil {
		return zero, false, nil
	}

	existing, err := Decode[T](rec, l.keyFields...)
	if err != nil {
		return zero, false, err
	}
	return existing, deleted, nil
}

// DeleteAll removes entities in one transaction and returns the removed ones
func (l *LocalStore[T]) DeleteAll(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	recs := make([]storage.Record, 0, len(entities))
	for _, e := range entities {
		e = models.BindKey(e, l.keyFields)
		recs = append(recs, storage.Record{Key: e.Key(), Version: e.Version()})
	}

	deleted, err := l.store.DeleteAll(ctx, recs)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](deleted, l.keyFields...)
}

// Clear removes every entity of the collection
func (l *LocalStore[T]) Clear(ctx context.Context) error {
	return l.store.Clear(ctx)
}

// Exists reports whether an entity with key is stored
func (l *LocalStore[T]) Exists(ctx context.Context, key string) (bool, error) {
	return l.store.Exists(ctx, key)
}

// Count returns the number of stored entities
func (l *LocalStore[T]) Count(ctx context.Context) (int, error) {
	return l.store.Count(ctx)
}

// LastSyncTimestamp returns the last successful sync timestamp
func (l *LocalStore[T]) LastSyncTimestamp(ctx context.Context) (int64, error) {
	return l.store.LastSyncTimestamp(ctx)
}

// SaveLastSyncTimestamp persists the last successful sync timestamp
func (l *LocalStore[T]) SaveLastSyncTimestamp(ctx context.Context, ts int64) error {
	return l.store.SaveLastSyncTimestamp(ctx, ts)
}

// SchemaVersion returns the last seen schema version
func (l *LocalStore[T]) SchemaVersion(ctx context.Context) (string, bool, error) {
	return l.store.SchemaVersion(ctx)
}

// SaveSchemaVersion persists the schema version
func (l *LocalStore[T]) SaveSchemaVersion(ctx context.Context, version string) error {
	return l.store.SaveSchemaVersion(ctx, version)
}

// ErrEmptyKey is returned when an entity without a key is written
var ErrEmptyKey = errors.New("entity has empty key")

// Encode converts an entity to a storage record
func Encode[T models.Entity](entity T) (storage.Record, error) {
	key := entity.Key()
	if key == "" {
		return storage.Record{}, ErrEmptyKey
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return storage.Record{}, fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return storage.Record{Key: key, Version: entity.Version(), Data: data}, nil
}

// Decode converts a storage record to an entity and binds keyFields to it
func Decode[T models.Entity](rec storage.Record, keyFields ...string) (T, error) {
	var entity T
	if err := json.Unmarshal(rec.Data, &entity); err != nil {
		return entity, fmt.Errorf("failed to unmarshal %s: %w", rec.Key, err)
	}
	return models.BindKey(entity, keyFields), nil
}

// DecodeAll decodes a batch of records
func DecodeAll[T models.Entity](recs []storage.Record, keyFields ...string) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		e, err := Decode[T](rec, keyFields...)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
