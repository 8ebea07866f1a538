package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badsubd/api"
	"badsubd/config"
	"badsubd/engine"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Load()
	cfg.DataPath = t.TempDir()

	eng, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	srv := httptest.NewServer(api.NewServer(eng, ""))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateTableInsertAndSelectOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/tables", map[string]any{
		"table_name": "users",
		"columns": []map[string]any{
			{"name": "id", "type": "INT", "size": 0},
			{"name": "name", "type": "VARCHAR", "size": 16},
		},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/v1/tables/users/rows", map[string]any{
		"id":   1,
		"name": "alice",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	sel, err := http.Get(srv.URL + "/v1/tables/users/rows?id=1")
	require.NoError(t, err)
	defer sel.Body.Close()
	assert.Equal(t, http.StatusOK, sel.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(sel.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0]["name"])
}

func TestSelectRowsColumnsParamProjectsAndIsNotAWhereClause(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/v1/tables", map[string]any{
		"table_name": "users",
		"columns": []map[string]any{
			{"name": "id", "type": "INT", "size": 0},
			{"name": "name", "type": "VARCHAR", "size": 16},
		},
	})
	postJSON(t, srv.URL+"/v1/tables/users/rows", map[string]any{"id": 1, "name": "alice"})

	sel, err := http.Get(srv.URL + "/v1/tables/users/rows?columns=name")
	require.NoError(t, err)
	defer sel.Body.Close()
	require.Equal(t, http.StatusOK, sel.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(sel.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"name": "alice"}, rows[0])
}

func TestCreateTableDuplicateReturnsConflict(t *testing.T) {
	srv := newTestServer(t)
	schema := map[string]any{
		"table_name": "widgets",
		"columns":    []map[string]any{{"name": "id", "type": "INT", "size": 0}},
	}

	first := postJSON(t, srv.URL+"/v1/tables", schema)
	assert.Equal(t, http.StatusCreated, first.StatusCode)

	second := postJSON(t, srv.URL+"/v1/tables", schema)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestSelectUnknownTableReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/tables/ghost/rows")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteSQLOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/v1/sql", map[string]string{
		"statement": "CREATE TABLE docs (id INT, title VARCHAR(32))",
	})

	resp := postJSON(t, srv.URL+"/v1/sql", map[string]string{
		"statement": "INSERT INTO docs VALUES (1, 'hello')",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	cfg := config.Load()
	cfg.DataPath = t.TempDir()
	eng, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer eng.Close()

	hash := "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5L4pb6hMHgR1GBQwgAfzQ8uJ7QEEC" // bcrypt("secret")
	srv := httptest.NewServer(api.NewServer(eng, hash))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/tables/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
