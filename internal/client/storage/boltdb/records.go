package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// Store is the BoltDB storage of one collection
type Store struct {
	db     *DB
	schema models.CollectionSchema
}

var _ storage.Store = (*Store)(nil)

// Name returns the collection name
func (s *Store) Name() string {
	return s.schema.Name
}

// Insert stores a new record
func (s *Store) Insert(ctx context.Context, rec storage.Record) error {
	err := s.update(func(root *bbolt.Bucket) error {
		records := root.Bucket(bucketRecords)
		if records.Get([]byte(rec.Key)) != nil {
			return storage.ErrAlreadyExists
		}
		return s.put(root, rec, nil)
	})
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.Key, err)
	}
	return nil
}

// Upsert stores or updates a record
func (s *Store) Upsert(ctx context.Context, rec storage.Record) (bool, error) {
	applied, err := s.UpsertAll(ctx, []storage.Record{rec})
	if err != nil {
		return false, err
	}
	return len(applied) == 1, nil
}

// UpsertAll stores records in one transaction skipping stale versions
func (s *Store) UpsertAll(ctx context.Context, recs []storage.Record) ([]storage.Record, error) {
	applied := make([]storage.Record, 0, len(recs))

	err := s.update(func(root *bbolt.Bucket) error {
		records := root.Bucket(bucketRecords)
		for _, rec := range recs {
			if rec.Key == "" {
				return fmt.Errorf("record without key")
			}

			var prev []byte
			if v := records.Get([]byte(rec.Key)); v != nil {
				version, data, err := decodeValue(v)
				if err != nil {
					return fmt.Errorf("failed to decode %s: %w", rec.Key, err)
				}
				// Запись не новее сохранённой - пропускаем
				if models.IsStale(rec.Version, version) {
					continue
				}
				prev = data
			}

			if err := s.put(root, rec, prev); err != nil {
				return err
			}
			applied = append(applied, rec)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("upsert transaction failed: %w", err)
	}

	return applied, nil
}

// Get retrieves a record by key
func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	var rec storage.Record

	err := s.view(func(root *bbolt.Bucket) error {
		v := root.Bucket(bucketRecords).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}

		version, data, err := decodeValue(v)
		if err != nil {
			return err
		}
		rec = storage.Record{Key: key, Version: version, Data: clone(data)}
		return nil
	})

	if err != nil {
		return storage.Record{}, err
	}

	return rec, nil
}

// Query returns records through a secondary index or by field comparison
func (s *Store) Query(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	if q.Index == "" {
		return s.Scan(ctx, func(rec storage.Record) bool {
			return storage.Matches(rec, q)
		}, q.Limit)
	}

	if _, ok := s.schema.IndexByName(q.Index); !ok {
		return nil, fmt.Errorf("%w: %s.%s", storage.ErrUnknownIndex, s.schema.Name, q.Index)
	}

	var result []storage.Record

	err := s.view(func(root *bbolt.Bucket) error {
		ib := root.Bucket(indexBucket(q.Index))
		if ib == nil {
			return fmt.Errorf("%w: %s.%s", storage.ErrUnknownIndex, s.schema.Name, q.Index)
		}
		records := root.Bucket(bucketRecords)

		prefix := indexKey(q.Value, "")
		c := ib.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			key := k[len(prefix):]
			v := records.Get(key)
			if v == nil {
				continue
			}

			version, data, err := decodeValue(v)
			if err != nil {
				return err
			}
			result = append(result, storage.Record{Key: string(key), Version: version, Data: clone(data)})

			if storage.Limited(len(result), q.Limit) {
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.schema.Name, err)
	}

	return result, nil
}

// Scan walks all records with a cursor
func (s *Store) Scan(ctx context.Context, pred func(storage.Record) bool, limit int) ([]storage.Record, error) {
	var result []storage.Record

	err := s.view(func(root *bbolt.Bucket) error {
		c := root.Bucket(bucketRecords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			version, data, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", k, err)
			}

			rec := storage.Record{Key: string(k), Version: version, Data: data}
			if pred != nil && !pred(rec) {
				continue
			}

			// Данные bbolt валидны только внутри транзакции
			rec.Data = clone(data)
			result = append(result, rec)

			if storage.Limited(len(result), limit) {
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.schema.Name, err)
	}

	return result, nil
}

// Delete removes a record unless the stored version is newer
func (s *Store) Delete(ctx context.Context, key string, version int64) (storage.Record, bool, error) {
	deleted, err := s.DeleteAll(ctx, []storage.Record{{Key: key, Version: version}})
	if err != nil {
		return storage.Record{}, false, err
	}
	if len(deleted) == 1 {
		return deleted[0], true, nil
	}

	// Удаление пропущено: отдаём то, что лежит в хранилище
	existing, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Record{}, false, nil
		}
		return storage.Record{}, false, err
	}
	return existing, false, nil
}

// DeleteAll removes records in one transaction applying the stale-write guard
func (s *Store) DeleteAll(ctx context.Context, recs []storage.Record) ([]storage.Record, error) {
	deleted := make([]storage.Record, 0, len(recs))

	err := s.update(func(root *bbolt.Bucket) error {
		records := root.Bucket(bucketRecords)
		for _, rec := range recs {
			v := records.Get([]byte(rec.Key))
			if v == nil {
				continue
			}

			version, data, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", rec.Key, err)
			}
			// Сохранённая версия новее удаляемой - удаление устарело
			if rec.Version != 0 && version > rec.Version {
				continue
			}

			existing := storage.Record{Key: rec.Key, Version: version, Data: clone(data)}
			if err := s.unindex(root, existing); err != nil {
				return err
			}
			if err := records.Delete([]byte(rec.Key)); err != nil {
				return fmt.Errorf("failed to delete %s: %w", rec.Key, err)
			}
			deleted = append(deleted, existing)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("delete transaction failed: %w", err)
	}

	return deleted, nil
}

// Clear removes all records of the collection
func (s *Store) Clear(ctx context.Context) error {
	err := s.update(func(root *bbolt.Bucket) error {
		// Удаляем bucket'ы полностью и создаем заново пустыми
		names := [][]byte{bucketRecords}
		for _, idx := range s.schema.Indices {
			names = append(names, indexBucket(idx.Name))
		}

		for _, name := range names {
			if err := root.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return fmt.Errorf("failed to delete bucket: %w", err)
			}
			if _, err := root.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("clear transaction failed: %w", err)
	}

	return nil
}

// Exists reports whether a record is stored
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.view(func(root *bbolt.Bucket) error {
		found = root.Bucket(bucketRecords).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.view(func(root *bbolt.Bucket) error {
		n = root.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

// put записывает запись и обновляет индексы. prev - данные предыдущей версии, если она была.
func (s *Store) put(root *bbolt.Bucket, rec storage.Record, prev []byte) error {
	if prev != nil {
		if err := s.unindex(root, storage.Record{Key: rec.Key, Data: prev}); err != nil {
			return err
		}
	}

	if err := root.Bucket(bucketRecords).Put([]byte(rec.Key), encodeValue(rec.Version, rec.Data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", rec.Key, err)
	}

	for _, idx := range s.schema.Indices {
		val, ok := storage.IndexValue(rec.Data, idx.Path)
		if !ok {
			continue
		}
		if err := root.Bucket(indexBucket(idx.Name)).Put(indexKey(val, rec.Key), emptyValue); err != nil {
			return fmt.Errorf("failed to index %s: %w", rec.Key, err)
		}
	}

	return nil
}

func (s *Store) unindex(root *bbolt.Bucket, rec storage.Record) error {
	for _, idx := range s.schema.Indices {
		val, ok := storage.IndexValue(rec.Data, idx.Path)
		if !ok {
			continue
		}
		if err := root.Bucket(indexBucket(idx.Name)).Delete(indexKey(val, rec.Key)); err != nil {
			return fmt.Errorf("failed to unindex %s: %w", rec.Key, err)
		}
	}
	return nil
}

func (s *Store) view(fn func(root *bbolt.Bucket) error) error {
	db, err := s.db.bolt()
	if err != nil {
		return err
	}
	return db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(collectionBucket(s.schema.Name))
		if root == nil {
			return fmt.Errorf("%w: %s", storage.ErrUnknownCollection, s.schema.Name)
		}
		return fn(root)
	})
}

func (s *Store) update(fn func(root *bbolt.Bucket) error) error {
	db, err := s.db.bolt()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(collectionBucket(s.schema.Name))
		if root == nil {
			return fmt.Errorf("%w: %s", storage.ErrUnknownCollection, s.schema.Name)
		}
		return fn(root)
	})
}

// encodeValue хранит версию в первых 8 байтах, чтобы сравнивать версии без JSON декодирования
func encodeValue(version int64, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(buf, uint64(version))
	copy(buf[8:], data)
	return buf
}

func decodeValue(v []byte) (int64, []byte, error) {
	if len(v) < 8 {
		return 0, nil, errCorruptValue
	}
	return int64(binary.BigEndian.Uint64(v[:8])), v[8:], nil
}

// indexKey len(value) | value | key; длина в префиксе, чтобы значение
// с \x00 внутри не совпадало с чужим префиксом. Пустой key дает префикс
// для поиска по значению
func indexKey(value, key string) []byte {
	buf := make([]byte, 4, 4+len(value)+len(key))
	binary.BigEndian.PutUint32(buf, uint32(len(value)))
	buf = append(buf, value...)
	buf = append(buf, key...)
	return buf
}

// emptyValue значение записей индексных bucket'ов, весь смысл в ключе
var emptyValue = []byte{}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
