package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badsubd/catalog"
	"badsubd/storage"
)

func testSchema() storage.Schema {
	return storage.Schema{
		TableName: "accounts",
		Columns: []storage.Column{
			{Name: "id", Type: storage.Int},
			{Name: "email", Type: storage.Varchar, Size: 64},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := catalog.Open(t.TempDir())
	require.NoError(t, err)

	schema := testSchema()
	require.NoError(t, store.Save(schema))

	assert.True(t, store.Exists("accounts"))

	loaded, err := store.Load("accounts")
	require.NoError(t, err)
	assert.Equal(t, schema.TableName, loaded.TableName)
	assert.Equal(t, schema.Columns, loaded.Columns)
}

func TestStoreSaveRejectsDuplicate(t *testing.T) {
	store, err := catalog.Open(t.TempDir())
	require.NoError(t, err)

	schema := testSchema()
	require.NoError(t, store.Save(schema))

	err = store.Save(schema)
	require.Error(t, err)
	kind, ok := storage.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, storage.AlreadyExists, kind)
}

func TestStoreLoadMissingIsNotFound(t *testing.T) {
	store, err := catalog.Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope")
	require.Error(t, err)
	kind, _ := storage.KindOf(err)
	assert.Equal(t, storage.NotFound, kind)
}

func TestStoreListSorted(t *testing.T) {
	store, err := catalog.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(storage.Schema{TableName: "zeta", Columns: []storage.Column{{Name: "id", Type: storage.Int}}}))
	require.NoError(t, store.Save(storage.Schema{TableName: "alpha", Columns: []storage.Column{{Name: "id", Type: storage.Int}}}))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestStoreDeleteMissingIsNotFound(t *testing.T) {
	store, err := catalog.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(testSchema()))
	require.NoError(t, store.Delete("accounts"))
	assert.False(t, store.Exists("accounts"))

	err = store.Delete("accounts")
	require.Error(t, err)
	kind, _ := storage.KindOf(err)
	assert.Equal(t, storage.NotFound, kind)
}
