package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveLastSyncTimestamp saves the timestamp of the last successful sync
func (s *Store) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	db, err := s.db.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO collection_meta (collection, last_sync_timestamp) VALUES (?, ?)
		 ON CONFLICT(collection) DO UPDATE SET last_sync_timestamp = excluded.last_sync_timestamp`,
		s.schema.Name, timestamp)
	if err != nil {
		return fmt.Errorf("failed to save last sync timestamp: %w", err)
	}

	return nil
}

// LastSyncTimestamp retrieves the timestamp of the last successful sync
// Returns 0 if no sync has been performed yet
func (s *Store) LastSyncTimestamp(ctx context.Context) (int64, error) {
	db, err := s.db.conn()
	if err != nil {
		return 0, err
	}

	var timestamp int64
	err = db.QueryRowContext(ctx,
		`SELECT last_sync_timestamp FROM collection_meta WHERE collection = ?`,
		s.schema.Name).Scan(&timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last sync timestamp: %w", err)
	}

	return timestamp, nil
}

// SchemaVersion returns the last seen schema version of the collection
func (s *Store) SchemaVersion(ctx context.Context) (string, bool, error) {
	db, err := s.db.conn()
	if err != nil {
		return "", false, err
	}

	var version sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT schema_version FROM collection_meta WHERE collection = ?`,
		s.schema.Name).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get schema version: %w", err)
	}

	return version.String, version.Valid, nil
}

// SaveSchemaVersion persists the schema version seen at open time
func (s *Store) SaveSchemaVersion(ctx context.Context, version string) error {
	db, err := s.db.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO collection_meta (collection, schema_version) VALUES (?, ?)
		 ON CONFLICT(collection) DO UPDATE SET schema_version = excluded.schema_version`,
		s.schema.Name, version)
	if err != nil {
		return fmt.Errorf("failed to save schema version: %w", err)
	}

	return nil
}
