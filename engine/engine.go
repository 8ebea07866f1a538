// Package engine coordinates catalog, heap and hashindex to implement
// BadSUBD's table operations: CreateTable, CreateIndex, Insert, Select and
// Delete.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"badsubd/catalog"
	"badsubd/config"
	"badsubd/hashindex"
	"badsubd/heap"
	"badsubd/logger"
	"badsubd/storage"
)

// table bundles the open resources for one table: its schema, heap file,
// and any hash indexes built on it.
type table struct {
	mu      sync.RWMutex
	schema  storage.Schema
	heap    *heap.File
	indexes map[string]*hashindex.Index // column name -> index
}

// Engine is the single entry point for table operations, backed by a
// directory tree of schema/heap/index files under cfg.DataPath.
type Engine struct {
	cfg *config.Config
	cat *catalog.Store

	mu     sync.RWMutex
	tables map[string]*table
}

// Open rehydrates an Engine from an existing data directory, or
// initializes a fresh one if the directory holds no tables yet. Every table named by
// the catalog is opened concurrently: each table's heap file and index
// files are independent on disk, so there is no shared state to race on
// during startup.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, storage.Wrap(storage.Io, "preparing data directories", err)
	}

	cat, err := catalog.Open(cfg.SchemaDir())
	if err != nil {
		return nil, err
	}

	names, err := cat.List()
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, cat: cat, tables: make(map[string]*table, len(names))}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*table, len(names))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := e.openTable(name)
			if err != nil {
				return err
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, name := range names {
		e.tables[name] = results[i]
	}
	logger.Info("engine opened at %s: %d table(s)", cfg.DataPath, len(names))
	return e, nil
}

func (e *Engine) heapPath(tableName string) string {
	return filepath.Join(e.cfg.TableDir(), tableName+".heap")
}

func (e *Engine) indexPath(tableName, column string) string {
	return filepath.Join(e.cfg.IndexDir(), fmt.Sprintf("%s.%s.idx", tableName, column))
}

// openTable loads the schema, heap file and any on-disk indexes for an
// already-cataloged table.
func (e *Engine) openTable(name string) (*table, error) {
	schema, err := e.cat.Load(name)
	if err != nil {
		return nil, err
	}

	hf, err := heap.Open(e.heapPath(name), schema)
	if err != nil {
		return nil, err
	}

	t := &table{schema: schema, heap: hf, indexes: make(map[string]*hashindex.Index)}

	entries, err := os.ReadDir(e.cfg.IndexDir())
	if err != nil {
		hf.Close()
		return nil, storage.Wrap(storage.Io, "listing index directory", err)
	}
	prefix := name + "."
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		base := ent.Name()
		if len(base) <= len(prefix) || base[:len(prefix)] != prefix {
			continue
		}
		column := base[len(prefix):]
		if ext := filepath.Ext(column); ext == ".idx" {
			column = column[:len(column)-len(ext)]
		} else {
			continue
		}
		idx, err := hashindex.Open(e.indexPath(name, column))
		if err != nil {
			hf.Close()
			return nil, err
		}
		t.indexes[column] = idx
	}

	return t, nil
}

func (e *Engine) lookupTable(name string) (*table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[name]
	if !ok {
		return nil, storage.NewError(storage.UnknownTable, fmt.Sprintf("table %q does not exist", name))
	}
	return t, nil
}

// CreateTable registers a new schema and allocates its heap file.
// Returns storage.AlreadyExists if the table is already known.
func (e *Engine) CreateTable(schema storage.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tables[schema.TableName]; exists {
		return storage.NewError(storage.AlreadyExists, fmt.Sprintf("table %q already exists", schema.TableName))
	}

	if err := e.cat.Save(schema); err != nil {
		return err
	}

	hf, err := heap.Create(e.heapPath(schema.TableName), schema)
	if err != nil {
		return err
	}

	e.tables[schema.TableName] = &table{schema: schema, heap: hf, indexes: make(map[string]*hashindex.Index)}
	logger.Info("table %q created, row size %d bytes", schema.TableName, schema.RowSize())
	return nil
}

// CreateIndex builds a hash index over an INT column of an existing table,
// backfilling it from every currently live row.
func (e *Engine) CreateIndex(tableName, column string) error {
	t, err := e.lookupTable(tableName)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	col, ok := t.schema.Column(column)
	if !ok {
		return storage.NewError(storage.UnknownColumn, fmt.Sprintf("column %q not found in table %q", column, tableName))
	}
	if col.Type != storage.Int {
		return storage.NewError(storage.TypeMismatch, fmt.Sprintf("index on %q.%q: only INT columns are indexable", tableName, column))
	}
	if _, exists := t.indexes[column]; exists {
		return storage.NewError(storage.AlreadyExists, fmt.Sprintf("index on %q.%q already exists", tableName, column))
	}

	idx, err := hashindex.Create(e.indexPath(tableName, column))
	if err != nil {
		return err
	}

	var buildErr error
	t.heap.Scan(func(row storage.Row) bool {
		if row.Deleted {
			return true
		}
		key, ok := row.Values[column].(uint64)
		if !ok {
			return true
		}
		if err := idx.Insert(key, row.Offset); err != nil {
			buildErr = err
			return false
		}
		return true
	})
	if buildErr != nil {
		return buildErr
	}

	t.indexes[column] = idx
	logger.Info("index built on %s.%s", tableName, column)
	return nil
}

// Insert appends a row and updates any affected indexes, returning the
// row's zero-based heap index.
func (e *Engine) Insert(tableName string, values map[string]any) (int64, error) {
	t, err := e.lookupTable(tableName)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.heap.Insert(values)
	if err != nil {
		return 0, err
	}

	offset := int64(headerOffset(t, idx))
	// Index keys come from the stored row, so int/float64 inputs are keyed
	// by the same uint64 the codec wrote.
	stored, err := t.heap.ReadByIndex(idx)
	if err != nil {
		return int64(idx), err
	}
	for col, index := range t.indexes {
		if v, present := values[col]; !present || v == nil {
			continue
		}
		key, ok := stored.Values[col].(uint64)
		if !ok {
			continue
		}
		if err := index.Insert(key, offset); err != nil {
			return int64(idx), err
		}
	}

	return int64(idx), nil
}

func headerOffset(t *table, idx uint64) int64 {
	return 16 + int64(idx)*int64(t.schema.RowSize())
}

// Select scans or index-probes tableName, returning every row matching
// where. A nil/empty where matches every row. If where names a column
// that is indexed, the first such column in schema order drives an
// index-assisted lookup instead of a full scan; remaining where clauses
// are still applied as a post-filter.
func (e *Engine) Select(tableName string, where map[string]any) ([]map[string]any, error) {
	t, err := e.lookupTable(tableName)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if driver, ok := e.pickIndexColumn(t, where); ok {
		return e.selectViaIndex(t, driver, where)
	}

	var results []map[string]any
	t.heap.Scan(func(row storage.Row) bool {
		if row.Deleted {
			return true
		}
		if matchesWhere(row.Values, where) {
			results = append(results, row.Values)
		}
		return true
	})
	return results, nil
}

// pickIndexColumn returns the first column, in schema order, that both
// appears in where and has a live index. Go map iteration order is
// unspecified, so schema order is used instead of WHERE-clause order to
// keep the choice deterministic across runs.
func (e *Engine) pickIndexColumn(t *table, where map[string]any) (string, bool) {
	if len(where) == 0 {
		return "", false
	}
	for _, col := range t.schema.Columns {
		if _, wanted := where[col.Name]; !wanted {
			continue
		}
		if _, indexed := t.indexes[col.Name]; indexed {
			return col.Name, true
		}
	}
	return "", false
}

func (e *Engine) selectViaIndex(t *table, column string, where map[string]any) ([]map[string]any, error) {
	key, ok := where[column].(uint64)
	if !ok {
		return nil, storage.NewError(storage.TypeMismatch, fmt.Sprintf("column %q: index lookup requires an INT value", column))
	}

	var results []map[string]any
	for _, offset := range t.indexes[column].Find(key) {
		idx := uint64((offset - 16) / int64(t.schema.RowSize()))
		row, err := t.heap.ReadByIndex(idx)
		if err != nil || row.Deleted {
			continue // tombstoned or unreadable slot: skip, don't fail the whole lookup
		}
		if matchesWhere(row.Values, where) {
			results = append(results, row.Values)
		}
	}
	return results, nil
}

func matchesWhere(values map[string]any, where map[string]any) bool {
	for col, want := range where {
		got, ok := values[col]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if au, ok := a.(uint64); ok {
		switch bv := b.(type) {
		case uint64:
			return au == bv
		case int:
			return bv >= 0 && au == uint64(bv)
		case int64:
			return bv >= 0 && au == uint64(bv)
		}
		return false
	}
	return a == b
}

// Delete removes rows matching where. With a non-empty where, matching
// rows are tombstoned and removed from any index; the count of rows
// tombstoned is returned. With an empty/nil where, the entire table is
// truncated without touching its indexes (they keep their entries for the
// removed rows and are not rebuilt) and the sentinel value -1 is returned.
func (e *Engine) Delete(tableName string, where map[string]any) (int64, error) {
	t, err := e.lookupTable(tableName)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(where) == 0 {
		if err := t.heap.Truncate(); err != nil {
			return 0, err
		}
		logger.Warn("table %q truncated; existing indexes are now stale", tableName)
		return -1, nil
	}

	var toDelete []storage.Row
	t.heap.Scan(func(row storage.Row) bool {
		if !row.Deleted && matchesWhere(row.Values, where) {
			toDelete = append(toDelete, row)
		}
		return true
	})

	for _, row := range toDelete {
		if err := t.heap.MarkDeleted(row.Index); err != nil {
			return int64(len(toDelete)), err
		}
		offset := headerOffset(t, row.Index)
		for col, index := range t.indexes {
			v, present := row.Values[col]
			if !present {
				continue
			}
			key, ok := v.(uint64)
			if !ok {
				continue
			}
			if err := index.Delete(key, &offset); err != nil {
				return int64(len(toDelete)), err
			}
		}
	}

	return int64(len(toDelete)), nil
}

// Info describes a table's schema and storage footprint, mirroring the
// original GET-TABLE-INFO report.
type Info struct {
	TableName string           `json:"table_name"`
	Columns   []storage.Column `json:"columns"`
	RowSize   int              `json:"row_size"`
	TotalRows uint64           `json:"total_rows"`
	Indexes   []string         `json:"indexes"`
}

// GetTableInfo reports schema, row size, row count and indexed columns
// for tableName.
func (e *Engine) GetTableInfo(tableName string) (Info, error) {
	t, err := e.lookupTable(tableName)
	if err != nil {
		return Info{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	cols := make([]string, 0, len(t.indexes))
	for col := range t.indexes {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	return Info{
		TableName: t.schema.TableName,
		Columns:   t.schema.Columns,
		RowSize:   t.schema.RowSize(),
		TotalRows: t.heap.TotalRows(),
		Indexes:   cols,
	}, nil
}

// Close releases every open heap file.
func (e *Engine) Close() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var firstErr error
	for _, t := range e.tables {
		if err := t.heap.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
