package hashindex_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badsubd/hashindex"
	"badsubd/storage"
)

func TestIndexInsertFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	idx, err := hashindex.Create(path)
	require.NoError(t, err)

	require.NoError(t, idx.Insert(7, 16))
	require.NoError(t, idx.Insert(7, 48))
	require.NoError(t, idx.Insert(9, 80))

	assert.ElementsMatch(t, []int64{16, 48}, idx.Find(7))
	assert.Equal(t, []int64{80}, idx.Find(9))
	assert.Empty(t, idx.Find(42))
}

func offsetPtr(v int64) *int64 { return &v }

func TestIndexDeleteRemovesOffsetOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	idx, err := hashindex.Create(path)
	require.NoError(t, err)

	require.NoError(t, idx.Insert(7, 16))
	require.NoError(t, idx.Insert(7, 48))
	require.NoError(t, idx.Delete(7, offsetPtr(16)))

	assert.Equal(t, []int64{48}, idx.Find(7))
	assert.Equal(t, 1, idx.KeyCount())

	require.NoError(t, idx.Delete(7, offsetPtr(48)))
	assert.Equal(t, 0, idx.KeyCount())
}

func TestIndexDeleteStripsAllOccurrencesOfOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	idx, err := hashindex.Create(path)
	require.NoError(t, err)

	require.NoError(t, idx.Insert(7, 16))
	require.NoError(t, idx.Insert(7, 16))
	require.NoError(t, idx.Insert(7, 48))

	require.NoError(t, idx.Delete(7, offsetPtr(16)))
	assert.Equal(t, []int64{48}, idx.Find(7))
}

func TestIndexDeleteWithNilOffsetRemovesWholeBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	idx, err := hashindex.Create(path)
	require.NoError(t, err)

	require.NoError(t, idx.Insert(7, 16))
	require.NoError(t, idx.Insert(7, 48))
	require.NoError(t, idx.Insert(9, 80))

	require.NoError(t, idx.Delete(7, nil))
	assert.Empty(t, idx.Find(7))
	assert.Equal(t, []int64{80}, idx.Find(9))
	assert.Equal(t, 1, idx.KeyCount())
}

func TestIndexDeleteMissingKeyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	idx, err := hashindex.Create(path)
	require.NoError(t, err)

	require.NoError(t, idx.Delete(42, offsetPtr(1)))
	require.NoError(t, idx.Delete(42, nil))
	assert.Equal(t, 0, idx.KeyCount())
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	idx, err := hashindex.Create(path)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(1, 100))
	require.NoError(t, idx.Insert(2, 200))

	reopened, err := hashindex.Open(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, reopened.Find(1))
	assert.Equal(t, []int64{200}, reopened.Find(2))
}

func TestIndexCreateRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col.idx")
	_, err := hashindex.Create(path)
	require.NoError(t, err)

	_, err = hashindex.Create(path)
	require.Error(t, err)
	kind, _ := storage.KindOf(err)
	assert.Equal(t, storage.AlreadyExists, kind)
}

func TestIndexOpenMissingIsNotFound(t *testing.T) {
	_, err := hashindex.Open(filepath.Join(t.TempDir(), "missing.idx"))
	require.Error(t, err)
	kind, _ := storage.KindOf(err)
	assert.Equal(t, storage.NotFound, kind)
}
