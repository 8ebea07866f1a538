// Package api exposes BadSUBD's table operations over HTTP, for use
// alongside (or instead of) the interactive SQL console.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"badsubd/engine"
	"badsubd/logger"
	"badsubd/sqlfrontend"
	"badsubd/storage"
)

// Server wraps an engine and SQL frontend behind an HTTP router.
//
// Using gorilla/mux here (rather than net/http's ServeMux) keeps route
// registration in the same shape the rest of the pack's HTTP services use:
// path variables via mux.Vars, per-route method restriction, consistent
// middleware chaining.
type Server struct {
	router         *mux.Router
	eng            *engine.Engine
	frontend       *sqlfrontend.Frontend
	adminTokenHash string
}

// NewServer builds a Server. adminTokenHash is a bcrypt hash of the bearer
// token required on every request; an empty hash disables authentication.
func NewServer(eng *engine.Engine, adminTokenHash string) *Server {
	s := &Server{
		router:         mux.NewRouter(),
		eng:            eng,
		frontend:       sqlfrontend.New(eng),
		adminTokenHash: adminTokenHash,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.requestLogMiddleware, s.authMiddleware)

	api.HandleFunc("/tables", s.handleCreateTable).Methods("POST")
	api.HandleFunc("/tables/{table}", s.handleGetTableInfo).Methods("GET")
	api.HandleFunc("/tables/{table}/indexes", s.handleCreateIndex).Methods("POST")
	api.HandleFunc("/tables/{table}/rows", s.handleInsertRow).Methods("POST")
	api.HandleFunc("/tables/{table}/rows", s.handleSelectRows).Methods("GET")
	api.HandleFunc("/tables/{table}/rows", s.handleDeleteRows).Methods("DELETE")
	api.HandleFunc("/sql", s.handleExecuteSQL).Methods("POST")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// requestLogMiddleware assigns each request a uuid-based request ID and
// logs its method, path and outcome latency.
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r)
		logger.Debug("request %s %s %s completed in %s", requestID, r.Method, r.URL.Path, time.Since(start))
	})
}

// authMiddleware requires a "Bearer <token>" Authorization header whose
// token matches adminTokenHash, unless adminTokenHash is empty (local/dev
// mode with authentication disabled).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminTokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, storage.NewError(storage.BadStatement, "missing bearer token"))
			return
		}
		token := auth[len(prefix):]

		if err := bcrypt.CompareHashAndPassword([]byte(s.adminTokenHash), []byte(token)); err != nil {
			writeError(w, http.StatusUnauthorized, storage.NewError(storage.BadStatement, "invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTableRequest struct {
	TableName  string           `json:"table_name"`
	Columns    []storage.Column `json:"columns"`
	PrimaryKey string           `json:"primary_key,omitempty"`
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, storage.Wrap(storage.BadStatement, "decoding request body", err))
		return
	}

	schema := storage.Schema{TableName: req.TableName, Columns: req.Columns, PrimaryKey: req.PrimaryKey}
	if err := s.eng.CreateTable(schema); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"table_name": req.TableName})
}

func (s *Server) handleGetTableInfo(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	info, err := s.eng.GetTableInfo(table)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type createIndexRequest struct {
	Column string `json:"column"`
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	var req createIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, storage.Wrap(storage.BadStatement, "decoding request body", err))
		return
	}
	if err := s.eng.CreateIndex(table, req.Column); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"table": table, "column": req.Column})
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, storage.Wrap(storage.BadStatement, "decoding request body", err))
		return
	}
	idx, err := s.eng.Insert(table, values)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"index": idx})
}

func (s *Server) handleSelectRows(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	where := whereFromQuery(r)
	rows, err := s.eng.Select(table, where)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if cols := r.URL.Query().Get("columns"); cols != "" {
		rows = projectColumns(rows, strings.Split(cols, ","))
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	where := whereFromQuery(r)
	count, err := s.eng.Delete(table, where)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

// whereFromQuery turns ?col=value&col2=value2 query parameters into an
// equality WHERE map, the HTTP equivalent of the SQL dialect's WHERE
// clause. Values that parse as unsigned integers are treated as INT
// literals; everything else is kept as a string. The "columns" parameter
// is reserved for projection (see projectColumns) and is never treated as
// a WHERE clause.
func whereFromQuery(r *http.Request) map[string]any {
	q := r.URL.Query()
	where := make(map[string]any, len(q))
	for key, vals := range q {
		if key == "columns" || len(vals) == 0 {
			continue
		}
		where[key] = queryLiteral(vals[0])
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

// projectColumns restricts each row to the named columns, the HTTP
// equivalent of the SQL dialect's SELECT column list.
func projectColumns(rows []map[string]any, columns []string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		p := make(map[string]any, len(columns))
		for _, col := range columns {
			col = strings.TrimSpace(col)
			if v, ok := row[col]; ok {
				p[col] = v
			}
		}
		out[i] = p
	}
	return out
}

// queryLiteral mirrors sqlfrontend's bareword-to-uint64 coercion so HTTP
// query parameters and SQL WHERE clauses behave the same way.
func queryLiteral(v string) any {
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return n
	}
	return v
}

type sqlRequest struct {
	Statement string `json:"statement"`
}

func (s *Server) handleExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, storage.Wrap(storage.BadStatement, "decoding request body", err))
		return
	}
	result, err := s.frontend.Execute(req.Statement)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("encoding response body: %v", err)
	}
}

type errorResponse struct {
	Error struct {
		Kind    storage.ErrorKind `json:"kind"`
		Message string            `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	var resp errorResponse
	if kind, ok := storage.KindOf(err); ok {
		resp.Error.Kind = kind
	}
	resp.Error.Message = err.Error()
	writeJSON(w, status, resp)
}

// writeEngineError maps a storage.ErrorKind to an HTTP status code.
func writeEngineError(w http.ResponseWriter, err error) {
	kind, _ := storage.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case storage.BadStatement, storage.UnsupportedStatement, storage.TypeMismatch, storage.OutOfRange:
		status = http.StatusBadRequest
	case storage.UnknownTable, storage.UnknownColumn, storage.NotFound:
		status = http.StatusNotFound
	case storage.AlreadyExists:
		status = http.StatusConflict
	}
	writeError(w, status, err)
}
