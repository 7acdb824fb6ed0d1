package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/storagetest"
	"github.com/iudanet/gophsync/internal/models"
)

func TestSQLite_Conformance(t *testing.T) {
	storagetest.Run(t, func(path string) storage.Database {
		return New(path)
	})
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := storagetest.Open(t, func(path string) storage.Database {
		return New(path)
	}, filepath.Join(t.TempDir(), "test.db")).(*DB)

	ctx := context.Background()
	for _, table := range []string{"collections", "records", "record_index", "collection_meta", "collection_indices"} {
		var n int
		err := db.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	var group string
	err := db.db.QueryRowContext(ctx, `SELECT group_name FROM collections WHERE name = ?`, "widgets").Scan(&group)
	require.NoError(t, err)
	assert.Equal(t, "test", group)
}

func TestOpen_InvalidPath(t *testing.T) {
	ctx := context.Background()

	db := New(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.NoError(t, db.Register(storagetest.WidgetsSchema))

	err := db.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrSchemaOpen)

	// Ошибка открытия фатальна для handle
	assert.ErrorIs(t, db.Open(ctx), storage.ErrSchemaOpen)
	assert.ErrorIs(t, db.Register(models.CollectionSchema{Name: "late", Version: "1"}), storage.ErrAlreadyOpen)
}

func TestOpen_BuildsNewIndexOnExistingData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db := New(path)
	require.NoError(t, db.Register(models.CollectionSchema{Name: "widgets", Version: "1.0.0"}))
	require.NoError(t, db.Open(ctx))

	store, err := db.Store("widgets")
	require.NoError(t, err)
	_, err = store.UpsertAll(ctx, []storage.Record{
		storagetest.Widget("a", "red", 1),
		storagetest.Widget("b", "blue", 1),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened := New(path)
	require.NoError(t, reopened.Register(storagetest.WidgetsSchema))
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	store, err = reopened.Store("widgets")
	require.NoError(t, err)

	blues, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "blue"})
	require.NoError(t, err)
	require.Len(t, blues, 1)
	assert.Equal(t, "b", blues[0].Key)
}
