package sqlfrontend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badsubd/config"
	"badsubd/engine"
	"badsubd/sqlfrontend"
)

func newTestFrontend(t *testing.T) *sqlfrontend.Frontend {
	t.Helper()
	cfg := config.Load()
	cfg.DataPath = t.TempDir()

	eng, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return sqlfrontend.New(eng)
}

func TestCreateTableStatement(t *testing.T) {
	f := newTestFrontend(t)
	result, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)
	assert.Equal(t, sqlfrontend.KindCreateTable, result.Kind)
	assert.True(t, result.Created)
}

func TestInsertWithExplicitColumns(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)

	result, err := f.Execute(`INSERT INTO users (id, name) VALUES (1, 'alice')`)
	require.NoError(t, err)
	assert.Equal(t, sqlfrontend.KindInsert, result.Kind)
	assert.Equal(t, int64(0), result.InsertedIndex)
}

func TestInsertWithImplicitColumnOrder(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)

	result, err := f.Execute(`INSERT INTO users VALUES (1, 'alice')`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.InsertedIndex)
}

func TestSelectStarReturnsAllColumns(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)
	_, err = f.Execute(`INSERT INTO users VALUES (1, 'alice')`)
	require.NoError(t, err)

	result, err := f.Execute("SELECT * FROM users")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "alice", result.Rows[0]["name"])
	assert.Equal(t, uint64(1), result.Rows[0]["id"])
}

func TestSelectWithProjection(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)
	_, err = f.Execute(`INSERT INTO users VALUES (1, 'alice')`)
	require.NoError(t, err)

	result, err := f.Execute("SELECT name FROM users")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, map[string]any{"name": "alice"}, result.Rows[0])
}

func TestSelectWithWhereEquality(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)
	_, err = f.Execute(`INSERT INTO users VALUES (1, 'alice')`)
	require.NoError(t, err)
	_, err = f.Execute(`INSERT INTO users VALUES (2, 'bob')`)
	require.NoError(t, err)

	result, err := f.Execute("SELECT * FROM users WHERE id = 2")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "bob", result.Rows[0]["name"])
}

func TestDeleteWithWhere(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)
	_, err = f.Execute(`INSERT INTO users VALUES (1, 'alice')`)
	require.NoError(t, err)

	result, err := f.Execute("DELETE FROM users WHERE id = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.DeletedCount)
}

func TestDeleteStarTruncatesWithSentinel(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE users (id INT, name VARCHAR(32))")
	require.NoError(t, err)
	_, err = f.Execute(`INSERT INTO users VALUES (1, 'alice')`)
	require.NoError(t, err)

	result, err := f.Execute("DELETE * FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), result.DeletedCount)
}

func TestUnsupportedStatementReturnsError(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("UPDATE users SET name = 'x'")
	require.Error(t, err)
}

func TestInvalidCreateTableSyntax(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE")
	require.Error(t, err)
}

func TestVarcharDefaultSizeWhenOmitted(t *testing.T) {
	f := newTestFrontend(t)
	_, err := f.Execute("CREATE TABLE docs (title VARCHAR)")
	require.NoError(t, err)
}
