package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	keyLastSyncTimestamp = "last_sync_timestamp"
	keySchemaVersion     = "schema_version"
)

// SaveLastSyncTimestamp saves the timestamp of the last successful sync
func (s *Store) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	return s.update(func(root *bbolt.Bucket) error {
		bucket := root.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// Конвертируем int64 в bytes
		timestampBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(timestampBytes, uint64(timestamp))

		if err := bucket.Put([]byte(keyLastSyncTimestamp), timestampBytes); err != nil {
			return fmt.Errorf("failed to save last sync timestamp: %w", err)
		}

		return nil
	})
}

// LastSyncTimestamp retrieves the timestamp of the last successful sync
// Returns 0 if no sync has been performed yet
func (s *Store) LastSyncTimestamp(ctx context.Context) (int64, error) {
	var timestamp int64

	err := s.view(func(root *bbolt.Bucket) error {
		bucket := root.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		timestampBytes := bucket.Get([]byte(keyLastSyncTimestamp))
		if len(timestampBytes) != 8 {
			// Если timestamp не найден, возвращаем 0 (первая синхронизация)
			return nil
		}

		timestamp = int64(binary.BigEndian.Uint64(timestampBytes))
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get last sync timestamp: %w", err)
	}

	return timestamp, nil
}

// SchemaVersion returns the last seen schema version of the collection
func (s *Store) SchemaVersion(ctx context.Context) (string, bool, error) {
	var (
		version string
		found   bool
	)

	err := s.view(func(root *bbolt.Bucket) error {
		bucket := root.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if v := bucket.Get([]byte(keySchemaVersion)); v != nil {
			version = string(v)
			found = true
		}
		return nil
	})

	if err != nil {
		return "", false, fmt.Errorf("failed to get schema version: %w", err)
	}

	return version, found, nil
}

// SaveSchemaVersion persists the schema version seen at open time
func (s *Store) SaveSchemaVersion(ctx context.Context, version string) error {
	return s.update(func(root *bbolt.Bucket) error {
		bucket := root.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if err := bucket.Put([]byte(keySchemaVersion), []byte(version)); err != nil {
			return fmt.Errorf("failed to save schema version: %w", err)
		}
		return nil
	})
}
