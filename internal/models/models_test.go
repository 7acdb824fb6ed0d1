package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type membership struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
	Meta
}

func (m membership) Key() string { return CompositeKey(m.UserID, m.GroupID) }

func TestMeta_KeyAndVersion(t *testing.T) {
	m := Meta{ID: "a", Created: 10, Updated: 150}

	assert.Equal(t, "a", m.Key())
	assert.Equal(t, int64(150), m.Version())
}

func TestCompositeKey(t *testing.T) {
	rec := membership{UserID: "u1", GroupID: "g1", Meta: Meta{Updated: 5}}

	key := rec.Key()
	assert.NotEqual(t, "u1g1", key)
	assert.Equal(t, []string{"u1", "g1"}, SplitCompositeKey(key))
	assert.Equal(t, int64(5), rec.Version())
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name     string
		incoming int64
		stored   int64
		expected bool
	}{
		{name: "older", incoming: 90, stored: 100, expected: true},
		{name: "equal", incoming: 100, stored: 100, expected: true},
		{name: "newer", incoming: 101, stored: 100, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsStale(tt.incoming, tt.stored))
		})
	}

	assert.True(t, IsNewer(Meta{Updated: 2}, Meta{Updated: 1}))
	assert.False(t, IsNewer(Meta{Updated: 1}, Meta{Updated: 1}))
}

func TestCollectionSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  CollectionSchema
		wantErr bool
	}{
		{
			name:   "valid",
			schema: CollectionSchema{Name: "widgets", Version: "1.0.0", Indices: []Index{{Name: "by_color", Path: "color"}}},
		},
		{
			name:    "empty name",
			schema:  CollectionSchema{Version: "1.0.0"},
			wantErr: true,
		},
		{
			name:    "bad name",
			schema:  CollectionSchema{Name: "wid gets", Version: "1.0.0"},
			wantErr: true,
		},
		{
			name:    "empty version",
			schema:  CollectionSchema{Name: "widgets"},
			wantErr: true,
		},
		{
			name:    "index without path",
			schema:  CollectionSchema{Name: "widgets", Version: "1", Indices: []Index{{Name: "by_color"}}},
			wantErr: true,
		},
		{
			name: "duplicate index",
			schema: CollectionSchema{Name: "widgets", Version: "1", Indices: []Index{
				{Name: "by_color", Path: "color"},
				{Name: "by_color", Path: "colour"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCollectionSchema_KeyFields(t *testing.T) {
	plain := CollectionSchema{Name: "widgets"}
	assert.Equal(t, []string{FieldID}, plain.KeyFields())
	assert.False(t, plain.HasCompositeKey())

	composite := CollectionSchema{Name: "memberships", UniqueKeys: []string{"user_id", "group_id"}}
	assert.Equal(t, []string{"user_id", "group_id"}, composite.KeyFields())
	assert.True(t, composite.HasCompositeKey())

	_, ok := composite.IndexByName("missing")
	assert.False(t, ok)
}

func TestDocument_JSON(t *testing.T) {
	input := `{"_id":"w1","__created":100,"__updated":150,"name":"gear","size":3}`

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(input), &doc))

	assert.Equal(t, "w1", doc.Key())
	assert.Equal(t, int64(150), doc.Version())
	assert.Equal(t, int64(100), doc.Created)
	assert.Len(t, doc.Fields, 2)

	var name string
	require.NoError(t, doc.Get("name", &name))
	assert.Equal(t, "gear", name)
	assert.Error(t, doc.Get("missing", &name))

	updated, err := doc.With("size", 4)
	require.NoError(t, err)
	assert.JSONEq(t, "3", string(doc.Fields["size"]), "original must not change")

	out, err := json.Marshal(updated)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_id":"w1","__created":100,"__updated":150,"name":"gear","size":4}`, string(out))
}

func TestDataStatus_String(t *testing.T) {
	assert.Equal(t, "no-data", NoData.String())
	assert.Equal(t, "updating-data", UpdatingData.String())
	assert.Equal(t, "contains-data", ContainsData.String())
	assert.Equal(t, "unknown", DataStatus(42).String())
}

func TestDocument_KeyFields(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"x1","author":"ann","slug":"a","rank":3,"gone":null}`), &doc))

	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{name: "unbound", want: "x1"},
		{name: "default id", fields: []string{FieldID}, want: "x1"},
		{name: "composite", fields: []string{"author", "slug"}, want: CompositeKey("ann", "a")},
		{name: "number part", fields: []string{"author", "rank"}, want: CompositeKey("ann", "3")},
		{name: "id part", fields: []string{FieldID, "slug"}, want: CompositeKey("x1", "a")},
		{name: "missing part", fields: []string{"author", "title"}, want: ""},
		{name: "null part", fields: []string{"author", "gone"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BindKey(doc, tt.fields).Key())
		})
	}

	bound := BindKey(doc, []string{"author", "slug"})
	renamed, err := bound.With("slug", "b")
	require.NoError(t, err)
	assert.Equal(t, CompositeKey("ann", "b"), renamed.Key())
}

func TestBindKey_PlainEntity(t *testing.T) {
	m := Meta{ID: "a"}
	assert.Equal(t, m, BindKey(m, []string{"author", "slug"}))
}
