package collection

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophsync/internal/client/api"
	"github.com/iudanet/gophsync/internal/client/localstore"
	"github.com/iudanet/gophsync/internal/client/storage"
	"github.com/iudanet/gophsync/internal/client/storage/boltdb"
	"github.com/iudanet/gophsync/internal/models"
	wire "github.com/iudanet/gophsync/pkg/api"
)

var postsSchema = models.CollectionSchema{
	Name:       "posts",
	Version:    "1.0.0",
	UniqueKeys: []string{"author", "slug"},
	Indices:    []models.Index{{Name: "by_author", Path: "author"}},
}

func openDocuments(t *testing.T, path string, client api.ClientAPI) (*Controller[models.Document], func()) {
	t.Helper()

	db := boltdb.New(path)
	c, err := New[models.Document](db, client, postsSchema, Options{Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	return c, func() { _ = db.Close() }
}

func raws(docs ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, json.RawMessage(d))
	}
	return out
}

func titleOf(t *testing.T, d models.Document) string {
	t.Helper()
	var title string
	require.NoError(t, d.Get("title", &title))
	return title
}

func TestController_CompositeKeyDocuments(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.db")
	c, closeDB := openDocuments(t, path, &api.ClientAPIMock{})

	require.NoError(t, c.ApplyDelta(ctx, raws(
		`{"author":"ann","slug":"a","title":"first","__updated":5}`,
		`{"author":"ann","slug":"b","title":"second","__updated":6}`,
		`{"author":"bob","slug":"a","title":"third","__updated":7}`,
	), nil))

	assert.Equal(t, models.ContainsData, c.Status())
	assert.Len(t, c.All(), 3)

	annA, ok := c.Unique(models.CompositeKey("ann", "a"))
	require.True(t, ok)
	assert.Equal(t, "first", titleOf(t, annA))
	assert.Equal(t, models.CompositeKey("ann", "a"), annA.Key())

	// старая версия под тем же составным ключом игнорируется
	require.NoError(t, c.ApplyDelta(ctx, raws(
		`{"author":"ann","slug":"a","title":"stale","__updated":4}`,
	), nil))
	annA, ok = c.Unique(models.CompositeKey("ann", "a"))
	require.True(t, ok)
	assert.Equal(t, "first", titleOf(t, annA))

	require.NoError(t, c.ApplyDelta(ctx, raws(
		`{"author":"ann","slug":"a","title":"edited","__updated":8}`,
	), raws(
		`{"author":"bob","slug":"a","__updated":9}`,
	)))
	annA, _ = c.Unique(models.CompositeKey("ann", "a"))
	assert.Equal(t, "edited", titleOf(t, annA))
	_, ok = c.Unique(models.CompositeKey("bob", "a"))
	assert.False(t, ok)

	desc, err := c.Descriptor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), desc.LocalLastUpdated)

	// после переоткрытия ключи восстанавливаются из хранилища
	closeDB()
	reopened, closeAgain := openDocuments(t, path, &api.ClientAPIMock{})
	defer closeAgain()

	assert.Len(t, reopened.All(), 2)
	annB, ok := reopened.Unique(models.CompositeKey("ann", "b"))
	require.True(t, ok)
	assert.Equal(t, "second", titleOf(t, annB))

	byAuthor, err := reopened.Query(ctx, storage.Query{Index: "by_author", Value: "ann"})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)
}

func TestController_CompositeKeyMissingField(t *testing.T) {
	ctx := context.Background()
	c, closeDB := openDocuments(t, filepath.Join(t.TempDir(), "posts.db"), &api.ClientAPIMock{})
	defer closeDB()

	err := c.ApplyDelta(ctx, raws(`{"author":"ann","title":"no slug","__updated":5}`), nil)
	assert.ErrorIs(t, err, localstore.ErrEmptyKey)
	assert.Empty(t, c.All())
}

func TestController_CompositeKeyUpsert(t *testing.T) {
	ctx := context.Background()
	var submitted []wire.Mutation
	client := &api.ClientAPIMock{
		SubmitMutationFunc: func(ctx context.Context, collection string, m wire.Mutation) (*wire.MutationResponse, error) {
			submitted = append(submitted, m)
			rec := json.RawMessage(`{"author":"ann","slug":"c","title":"new","__created":10,"__updated":10}`)
			return &wire.MutationResponse{Record: rec, Created: true}, nil
		},
	}
	c, closeDB := openDocuments(t, filepath.Join(t.TempDir(), "posts.db"), client)
	defer closeDB()

	doc := models.Document{Fields: map[string]json.RawMessage{}}
	doc, err := doc.With("author", "ann")
	require.NoError(t, err)
	doc, err = doc.With("slug", "c")
	require.NoError(t, err)

	future, err := c.Upsert(ctx, doc)
	require.NoError(t, err)
	saved, err := future.Wait(ctx)
	require.NoError(t, err)

	require.Len(t, submitted, 1)
	assert.Equal(t, models.CompositeKey("ann", "c"), submitted[0].Key)
	assert.Equal(t, models.CompositeKey("ann", "c"), saved.Key())

	cached, ok := c.Unique(models.CompositeKey("ann", "c"))
	require.True(t, ok)
	assert.Equal(t, "new", titleOf(t, cached))
}
