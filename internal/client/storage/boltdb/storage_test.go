package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/storagetest"
	"github.com/iudanet/gophsync/internal/models"
)

func TestBoltDB_Conformance(t *testing.T) {
	storagetest.Run(t, func(path string) storage.Database {
		return New(path)
	})
}

func TestOpen_CreatesBuckets(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "testdb.db")

	db := New(dbPath)
	require.NoError(t, db.Register(storagetest.WidgetsSchema))
	require.NoError(t, db.Open(context.Background()))
	defer func() {
		require.NoError(t, db.Close())
	}()

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// Проверяем, что бакеты существуют
	err = db.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(collectionBucket("widgets"))
		if root == nil {
			return os.ErrNotExist
		}
		for _, b := range [][]byte{bucketRecords, bucketMetadata, indexBucket("by_color")} {
			if root.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpen_InvalidPath(t *testing.T) {
	ctx := context.Background()

	// Путь внутри несуществующего каталога открыть нельзя
	db := New(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.NoError(t, db.Register(storagetest.WidgetsSchema))

	err := db.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrSchemaOpen)

	// Ошибка открытия фатальна для handle
	err = db.Open(ctx)
	assert.ErrorIs(t, err, storage.ErrSchemaOpen)

	_, err = db.Store("widgets")
	assert.ErrorIs(t, err, storage.ErrSchemaOpen)
}

func TestClose(t *testing.T) {
	tmpDir := t.TempDir()
	db := New(filepath.Join(tmpDir, "testdb.db"))
	require.NoError(t, db.Register(storagetest.WidgetsSchema))
	require.NoError(t, db.Open(context.Background()))

	store, err := db.Store("widgets")
	require.NoError(t, err)

	// Закрываем БД
	err = db.Close()
	assert.NoError(t, err)

	// После закрытия поле db должно стать nil
	assert.Nil(t, db.db)

	// Второй вызов Close не должен падать и должен просто ничего не делать
	err = db.Close()
	assert.NoError(t, err)

	_, err = store.Get(context.Background(), "a")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestRegister_Duplicate(t *testing.T) {
	db := New(filepath.Join(t.TempDir(), "testdb.db"))
	require.NoError(t, db.Register(storagetest.WidgetsSchema))
	assert.Error(t, db.Register(storagetest.WidgetsSchema))
	assert.Error(t, db.Register(models.CollectionSchema{Name: "bad name", Version: "1"}))
}

func TestOpen_BuildsNewIndexOnExistingData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "testdb.db")

	plain := models.CollectionSchema{Name: "widgets", Version: "1.0.0"}
	db := New(path)
	require.NoError(t, db.Register(plain))
	require.NoError(t, db.Open(ctx))

	store, err := db.Store("widgets")
	require.NoError(t, err)
	_, err = store.UpsertAll(ctx, []storage.Record{
		storagetest.Widget("a", "red", 1),
		storagetest.Widget("b", "blue", 1),
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Следующая версия схемы объявляет индекс
	reopened := New(path)
	require.NoError(t, reopened.Register(storagetest.WidgetsSchema))
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close()

	store, err = reopened.Store("widgets")
	require.NoError(t, err)

	reds, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "red"})
	require.NoError(t, err)
	require.Len(t, reds, 1)
	assert.Equal(t, "a", reds[0].Key)
}

func TestValueEncoding(t *testing.T) {
	encoded := encodeValue(150, []byte(`{"_id":"a"}`))

	version, data, err := decodeValue(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(150), version)
	assert.Equal(t, `{"_id":"a"}`, string(data))

	_, _, err = decodeValue([]byte{1, 2})
	assert.ErrorIs(t, err, errCorruptValue)
}

func TestQuery_ValueWithNulByte(t *testing.T) {
	ctx := context.Background()
	db := New(filepath.Join(t.TempDir(), "testdb.db"))
	require.NoError(t, db.Register(storagetest.WidgetsSchema))
	require.NoError(t, db.Open(ctx))
	defer db.Close()

	store, err := db.Store("widgets")
	require.NoError(t, err)

	raw := func(key, color string) storage.Record {
		return storage.Record{
			Key:     key,
			Version: 1,
			Data:    []byte(`{"_id":"x","__updated":1,"color":` + color + `}`),
		}
	}
	_, err = store.UpsertAll(ctx, []storage.Record{
		storagetest.Widget("plain", "a", 1),
		// значение с \x00 не должно совпадать с префиксом значения "a"
		raw("x", `"a\u0000b"`),
		raw("b\x00x", `"blue"`),
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "plain value", value: "a", want: []string{"plain"}},
		{name: "value with nul", value: "a\x00b", want: []string{"x"}},
		{name: "nul prefix only", value: "a\x00", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := store.Query(ctx, storage.Query{Index: "by_color", Value: tt.value})
			require.NoError(t, err)

			var keys []string
			for _, r := range recs {
				keys = append(keys, r.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}

	// удаление не оставляет висячих записей индекса
	_, _, err = store.Delete(ctx, "x", 2)
	require.NoError(t, err)
	recs, err := store.Query(ctx, storage.Query{Index: "by_color", Value: "a\x00b"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
