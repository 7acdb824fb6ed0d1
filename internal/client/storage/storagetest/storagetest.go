// Package storagetest contains the behaviour suite every storage backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/models"
)

// Factory creates an unopened database handle for the file at path.
type Factory func(path string) storage.Database

// WidgetsSchema is the collection used by the suite.
var WidgetsSchema = models.CollectionSchema{
	Name:    "widgets",
	Group:   "test",
	Version: "1.0.0",
	Indices: []models.Index{{Name: "by_color", Path: "color"}},
}

// GadgetsSchema is a second collection sharing the same handle.
var GadgetsSchema = models.CollectionSchema{
	Name:    "gadgets",
	Group:   "test",
	Version: "1.0.0",
}

// Widget builds a stored record of the widgets collection.
func Widget(id, color string, version int64) storage.Record {
	return storage.Record{
		Key:     id,
		Version: version,
		Data:    []byte(fmt.Sprintf(`{"_id":%q,"__updated":%d,"color":%q}`, id, version, color)),
	}
}

// Run executes the suite against backend.
func Run(t *testing.T, factory Factory) {
	t.Run("OpenIdempotent", func(t *testing.T) { testOpenIdempotent(t, factory) })
	t.Run("RegisterAfterOpen", func(t *testing.T) { testRegisterAfterOpen(t, factory) })
	t.Run("UnknownCollection", func(t *testing.T) { testUnknownCollection(t, factory) })
	t.Run("Insert", func(t *testing.T) { testInsert(t, factory) })
	t.Run("UpsertStaleGuard", func(t *testing.T) { testUpsertStaleGuard(t, factory) })
	t.Run("UpsertAll", func(t *testing.T) { testUpsertAll(t, factory) })
	t.Run("QueryIndex", func(t *testing.T) { testQueryIndex(t, factory) })
	t.Run("QueryField", func(t *testing.T) { testQueryField(t, factory) })
	t.Run("Scan", func(t *testing.T) { testScan(t, factory) })
	t.Run("DeleteStaleGuard", func(t *testing.T) { testDeleteStaleGuard(t, factory) })
	t.Run("DeleteAll", func(t *testing.T) { testDeleteAll(t, factory) })
	t.Run("Clear", func(t *testing.T) { testClear(t, factory) })
	t.Run("Metadata", func(t *testing.T) { testMetadata(t, factory) })
	t.Run("Persistence", func(t *testing.T) { testPersistence(t, factory) })
	t.Run("CollectionsIsolated", func(t *testing.T) { testCollectionsIsolated(t, factory) })
}

// Open registers both suite schemas and opens a fresh database.
func Open(t *testing.T, factory Factory, path string) storage.Database {
	t.Helper()

	db := factory(path)
	require.NoError(t, db.Register(WidgetsSchema))
	require.NoError(t, db.Register(GadgetsSchema))
	require.NoError(t, db.Open(context.Background()))
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func openWidgets(t *testing.T, factory Factory) storage.Store {
	t.Helper()

	db := Open(t, factory, filepath.Join(t.TempDir(), "test.db"))
	store, err := db.Store(WidgetsSchema.Name)
	require.NoError(t, err)
	return store
}

func testOpenIdempotent(t *testing.T, factory Factory) {
	db := Open(t, factory, filepath.Join(t.TempDir(), "test.db"))

	// Повторное открытие ничего не ломает
	require.NoError(t, db.Open(context.Background()))

	store, err := db.Store(WidgetsSchema.Name)
	require.NoError(t, err)
	assert.Equal(t, WidgetsSchema.Name, store.Name())
}

func testRegisterAfterOpen(t *testing.T, factory Factory) {
	db := Open(t, factory, filepath.Join(t.TempDir(), "test.db"))

	err := db.Register(models.CollectionSchema{Name: "late", Version: "1"})
	assert.ErrorIs(t, err, storage.ErrAlreadyOpen)
}

func testUnknownCollection(t *testing.T, factory Factory) {
	db := factory(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, db.Register(WidgetsSchema))

	_, err := db.Store(WidgetsSchema.Name)
	assert.ErrorIs(t, err, storage.ErrNotOpen)

	require.NoError(t, db.Open(context.Background()))
	defer db.Close()

	_, err = db.Store("missing")
	assert.ErrorIs(t, err, storage.ErrUnknownCollection)
}

func testInsert(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	require.NoError(t, store.Insert(ctx, Widget("a", "red", 100)))

	err := store.Insert(ctx, Widget("a", "blue", 200))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.Version)
	assert.JSONEq(t, string(Widget("a", "red", 100).Data), string(rec.Data))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpsertStaleGuard(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	tests := []struct {
		name        string
		rec         storage.Record
		wantApplied bool
		wantVersion int64
	}{
		{name: "first write", rec: Widget("a", "red", 100), wantApplied: true, wantVersion: 100},
		{name: "newer version", rec: Widget("a", "blue", 150), wantApplied: true, wantVersion: 150},
		{name: "equal version", rec: Widget("a", "green", 150), wantApplied: false, wantVersion: 150},
		{name: "older version", rec: Widget("a", "black", 120), wantApplied: false, wantVersion: 150},
	}

	for _, tt := range tests {
		applied, err := store.Upsert(ctx, tt.rec)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantApplied, applied, tt.name)

		rec, err := store.Get(ctx, "a")
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantVersion, rec.Version, tt.name)
	}

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "blue", storage.FieldValue(rec.Data, "color"))
}

func testUpsertAll(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	_, err := store.Upsert(ctx, Widget("b", "red", 200))
	require.NoError(t, err)

	applied, err := store.UpsertAll(ctx, []storage.Record{
		Widget("a", "red", 100),
		Widget("b", "blue", 150), // устаревшая
		Widget("c", "green", 300),
	})
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "a", applied[0].Key)
	assert.Equal(t, "c", applied[1].Key)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testQueryIndex(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	_, err := store.UpsertAll(ctx, []storage.Record{
		Widget("a", "red", 100),
		Widget("b", "blue", 100),
		Widget("c", "red", 100),
		Widget("d", "red", 100),
	})
	require.NoError(t, err)

	reds, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "red"})
	require.NoError(t, err)
	assert.Len(t, reds, 3)

	limited, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "red", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Перекраска должна переместить запись в индексе
	_, err = store.Upsert(ctx, Widget("a", "blue", 200))
	require.NoError(t, err)

	reds, err = store.Query(ctx, storage.Query{Index: "by_color", Value: "red"})
	require.NoError(t, err)
	assert.Len(t, reds, 2)

	blues, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "blue"})
	require.NoError(t, err)
	assert.Len(t, blues, 2)

	// Удаление чистит индекс
	_, deleted, err := store.Delete(ctx, "b", 100)
	require.NoError(t, err)
	assert.True(t, deleted)

	blues, err = store.Query(ctx, storage.Query{Index: "by_color", Value: "blue"})
	require.NoError(t, err)
	require.Len(t, blues, 1)
	assert.Equal(t, "a", blues[0].Key)

	_, err = store.Query(ctx, storage.Query{Index: "by_size", Value: "1"})
	assert.ErrorIs(t, err, storage.ErrUnknownIndex)
}

func testQueryField(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	_, err := store.UpsertAll(ctx, []storage.Record{
		Widget("a", "red", 100),
		Widget("b", "blue", 100),
	})
	require.NoError(t, err)

	res, err := store.Query(ctx, storage.Query{Field: "color", Value: "blue"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].Key)

	all, err := store.Query(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testScan(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	for i := 0; i < 10; i++ {
		_, err := store.Upsert(ctx, Widget(fmt.Sprintf("w%02d", i), "red", int64(100+i)))
		require.NoError(t, err)
	}

	var visited int
	res, err := store.Scan(ctx, func(rec storage.Record) bool {
		visited++
		return rec.Version%2 == 0
	}, 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
	// Скан останавливается на лимите
	assert.Less(t, visited, 10)

	all, err := store.Scan(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func testDeleteStaleGuard(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	_, err := store.Upsert(ctx, Widget("a", "red", 200))
	require.NoError(t, err)

	// Хранимая версия новее - удаление пропускается
	existing, deleted, err := store.Delete(ctx, "a", 150)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, int64(200), existing.Version)

	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Та же версия удаляет
	existing, deleted, err = store.Delete(ctx, "a", 200)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "a", existing.Key)

	// Без версии проверка не выполняется
	_, err = store.Upsert(ctx, Widget("b", "red", 500))
	require.NoError(t, err)
	_, deleted, err = store.Delete(ctx, "b", 0)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Отсутствующий ключ - не ошибка
	_, deleted, err = store.Delete(ctx, "missing", 1)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testDeleteAll(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	_, err := store.UpsertAll(ctx, []storage.Record{
		Widget("a", "red", 100),
		Widget("b", "red", 300),
		Widget("c", "red", 100),
	})
	require.NoError(t, err)

	deleted, err := store.DeleteAll(ctx, []storage.Record{
		{Key: "a", Version: 100},
		{Key: "b", Version: 200},
		{Key: "missing", Version: 1},
	})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "a", deleted[0].Key)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testClear(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	_, err := store.UpsertAll(ctx, []storage.Record{Widget("a", "red", 100), Widget("b", "red", 100)})
	require.NoError(t, err)
	require.NoError(t, store.SaveLastSyncTimestamp(ctx, 100))

	require.NoError(t, store.Clear(ctx))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	reds, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "red"})
	require.NoError(t, err)
	assert.Empty(t, reds)

	// После очистки можно писать снова
	applied, err := store.Upsert(ctx, Widget("a", "red", 50))
	require.NoError(t, err)
	assert.True(t, applied)
}

func testMetadata(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := openWidgets(t, factory)

	// Пока timestamp не сохранён, ожидаем 0
	ts, err := store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	require.NoError(t, store.SaveLastSyncTimestamp(ctx, 1234567890))
	ts, err = store.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1234567890), ts)

	_, found, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveSchemaVersion(ctx, "1.1.0"))
	version, found, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1.1.0", version)
}

func testPersistence(t *testing.T, factory Factory) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	db := factory(path)
	require.NoError(t, db.Register(WidgetsSchema))
	require.NoError(t, db.Open(ctx))

	store, err := db.Store(WidgetsSchema.Name)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, Widget("a", "red", 100))
	require.NoError(t, err)
	require.NoError(t, store.SaveSchemaVersion(ctx, "1.0.0"))
	require.NoError(t, db.Close())

	// Записи переживают перезапуск
	reopened := factory(path)
	require.NoError(t, reopened.Register(WidgetsSchema))
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	store, err = reopened.Store(WidgetsSchema.Name)
	require.NoError(t, err)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.Version)

	version, found, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1.0.0", version)
}

func testCollectionsIsolated(t *testing.T, factory Factory) {
	ctx := context.Background()
	db := Open(t, factory, filepath.Join(t.TempDir(), "test.db"))

	widgets, err := db.Store(WidgetsSchema.Name)
	require.NoError(t, err)
	gadgets, err := db.Store(GadgetsSchema.Name)
	require.NoError(t, err)

	_, err = widgets.Upsert(ctx, Widget("a", "red", 100))
	require.NoError(t, err)
	require.NoError(t, widgets.SaveLastSyncTimestamp(ctx, 100))

	ok, err := gadgets.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ts, err := gadgets.LastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	require.NoError(t, gadgets.Clear(ctx))
	n, err := widgets.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
