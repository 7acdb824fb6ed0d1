package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// Store is the SQLite storage of one collection
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, _, found, err := s.getTx(ctx, tx, rec.Key)
		if err != nil {
			return err
		}
		if found {
			return storage.ErrAlreadyExists
		}
		return s.put(ctx, tx, rec, nil)
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

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if rec.Key == "" {
				return fmt.Errorf("record without key")
			}

			version, prev, found, err := s.getTx(ctx, tx, rec.Key)
			if err != nil {
				return err
			}
			// Запись не новее сохранённой - пропускаем
			if found && models.IsStale(rec.Version, version) {
				continue
			}

			if err := s.put(ctx, tx, rec, prev); err != nil {
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
	db, err := s.db.conn()
	if err != nil {
		return storage.Record{}, err
	}

	var rec storage.Record
	err = db.QueryRowContext(ctx,
		`SELECT record_key, version, data FROM records WHERE collection = ? AND record_key = ?`,
		s.schema.Name, key,
	).Scan(&rec.Key, &rec.Version, &rec.Data)

	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("failed to get %s: %w", key, err)
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

	db, err := s.db.conn()
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // в SQLite отрицательный LIMIT означает "без ограничения"
	}

	rows, err := db.QueryContext(ctx,
		`SELECT r.record_key, r.version, r.data
		 FROM record_index i
		 JOIN records r ON r.collection = i.collection AND r.record_key = i.record_key
		 WHERE i.collection = ? AND i.index_name = ? AND i.idx_value = ?
		 ORDER BY r.record_key
		 LIMIT ?`,
		s.schema.Name, q.Index, q.Value, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.schema.Name, err)
	}
	defer rows.Close()

	return collect(rows, nil, 0)
}

// Scan walks all records in key order
func (s *Store) Scan(ctx context.Context, pred func(storage.Record) bool, limit int) ([]storage.Record, error) {
	db, err := s.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT record_key, version, data FROM records WHERE collection = ? ORDER BY record_key`,
		s.schema.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.schema.Name, err)
	}
	defer rows.Close()

	return collect(rows, pred, limit)
}

// Delete removes a record unless the stored version is newer
func (s *Store) Delete(ctx context.Context, key string, version int64) (storage.Record, bool, error) {
	var (
		existing storage.Record
		deleted  bool
	)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, data, found, err := s.getTx(ctx, tx, key)
		if err != nil || !found {
			return err
		}

		existing = storage.Record{Key: key, Version: stored, Data: data}
		// Сохранённая версия новее удаляемой - удаление устарело
		if version != 0 && stored > version {
			return nil
		}

		if err := s.remove(ctx, tx, key); err != nil {
			return err
		}
		deleted = true
		return nil
	})

	if err != nil {
		return storage.Record{}, false, fmt.Errorf("delete transaction failed: %w", err)
	}

	return existing, deleted, nil
}

// DeleteAll removes records in one transaction applying the stale-write guard
func (s *Store) DeleteAll(ctx context.Context, recs []storage.Record) ([]storage.Record, error) {
	deleted := make([]storage.Record, 0, len(recs))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			stored, data, found, err := s.getTx(ctx, tx, rec.Key)
			if err != nil {
				return err
			}
			if !found || (rec.Version != 0 && stored > rec.Version) {
				continue
			}

			if err := s.remove(ctx, tx, rec.Key); err != nil {
				return err
			}
			deleted = append(deleted, storage.Record{Key: rec.Key, Version: stored, Data: data})
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM record_index WHERE collection = ?`, s.schema.Name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, s.schema.Name)
		return err
	})

	if err != nil {
		return fmt.Errorf("clear transaction failed: %w", err)
	}

	return nil
}

// Exists reports whether a record is stored
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	db, err := s.db.conn()
	if err != nil {
		return false, err
	}

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM records WHERE collection = ? AND record_key = ?`,
		s.schema.Name, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}

	return n > 0, nil
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.db.conn()
	if err != nil {
		return 0, err
	}

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM records WHERE collection = ?`, s.schema.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.schema.Name, err)
	}

	return n, nil
}

func (s *Store) getTx(ctx context.Context, tx *sql.Tx, key string) (int64, []byte, bool, error) {
	var (
		version int64
		data    []byte
	)

	err := tx.QueryRowContext(ctx,
		`SELECT version, data FROM records WHERE collection = ? AND record_key = ?`,
		s.schema.Name, key).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return version, data, true, nil
}

// put записывает запись и обновляет индексы. prev - данные предыдущей версии, если она была.
func (s *Store) put(ctx context.Context, tx *sql.Tx, rec storage.Record, prev []byte) error {
	if prev != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM record_index WHERE collection = ? AND record_key = ?`,
			s.schema.Name, rec.Key); err != nil {
			return fmt.Errorf("failed to unindex %s: %w", rec.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (collection, record_key, version, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, record_key) DO UPDATE SET version = excluded.version, data = excluded.data`,
		s.schema.Name, rec.Key, rec.Version, rec.Data); err != nil {
		return fmt.Errorf("failed to save %s: %w", rec.Key, err)
	}

	for _, idx := range s.schema.Indices {
		val, ok := storage.IndexValue(rec.Data, idx.Path)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO record_index (collection, index_name, idx_value, record_key) VALUES (?, ?, ?, ?)`,
			s.schema.Name, idx.Name, val, rec.Key); err != nil {
			return fmt.Errorf("failed to index %s: %w", rec.Key, err)
		}
	}

	return nil
}

func (s *Store) remove(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_index WHERE collection = ? AND record_key = ?`, s.schema.Name, key); err != nil {
		return fmt.Errorf("failed to unindex %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND record_key = ?`, s.schema.Name, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.db.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// collect читает строки курсором и останавливается на лимите
func collect(rows *sql.Rows, pred func(storage.Record) bool, limit int) ([]storage.Record, error) {
	var result []storage.Record

	for rows.Next() {
		var rec storage.Record
		if err := rows.Scan(&rec.Key, &rec.Version, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if pred != nil && !pred(rec) {
			continue
		}

		result = append(result, rec)
		if storage.Limited(len(result), limit) {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}
