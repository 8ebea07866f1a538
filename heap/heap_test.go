package heap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badsubd/heap"
	"badsubd/storage"
)

func testSchema() storage.Schema {
	return storage.Schema{
		TableName: "items",
		Columns: []storage.Column{
			{Name: "id", Type: storage.Int},
			{Name: "label", Type: storage.Varchar, Size: 8},
		},
	}
}

func TestHeapInsertAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.heap")
	hf, err := heap.Create(path, testSchema())
	require.NoError(t, err)
	defer hf.Close()

	idx, err := hf.Insert(map[string]any{"id": uint64(1), "label": "first"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)

	row, err := hf.ReadByIndex(idx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), row.Values["id"])
	assert.Equal(t, "first", row.Values["label"])
	assert.False(t, row.Deleted)

	assert.Equal(t, uint64(1), hf.TotalRows())
}

func TestHeapCreateRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.heap")
	hf, err := heap.Create(path, testSchema())
	require.NoError(t, err)
	hf.Close()

	_, err = heap.Create(path, testSchema())
	require.Error(t, err)
	kind, _ := storage.KindOf(err)
	assert.Equal(t, storage.AlreadyExists, kind)
}

func TestHeapReopenPreservesRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.heap")
	schema := testSchema()

	hf, err := heap.Create(path, schema)
	require.NoError(t, err)
	_, err = hf.Insert(map[string]any{"id": uint64(1), "label": "a"})
	require.NoError(t, err)
	_, err = hf.Insert(map[string]any{"id": uint64(2), "label": "b"})
	require.NoError(t, err)
	require.NoError(t, hf.Close())

	reopened, err := heap.Open(path, schema)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(2), reopened.TotalRows())
}

func TestHeapMarkDeletedAndScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.heap")
	hf, err := heap.Create(path, testSchema())
	require.NoError(t, err)
	defer hf.Close()

	idx0, _ := hf.Insert(map[string]any{"id": uint64(1), "label": "a"})
	_, _ = hf.Insert(map[string]any{"id": uint64(2), "label": "b"})

	require.NoError(t, hf.MarkDeleted(idx0))

	var live []uint64
	err = hf.Scan(func(r storage.Row) bool {
		if !r.Deleted {
			live = append(live, r.Index)
		}
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, live)
}

func TestHeapTruncateResetsCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.heap")
	hf, err := heap.Create(path, testSchema())
	require.NoError(t, err)
	defer hf.Close()

	_, _ = hf.Insert(map[string]any{"id": uint64(1), "label": "a"})
	require.NoError(t, hf.Truncate())
	assert.Equal(t, uint64(0), hf.TotalRows())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size(), "truncate must shrink the heap file back to just the header")

	idx, err := hf.Insert(map[string]any{"id": uint64(9), "label": "z"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)
}
