// Package catalog persists table schemas as JSON documents, one file per
// table under the configured schema directory.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"

	"badsubd/storage"
)

// Store is a directory-backed registry of table schemas. All mutating
// operations serialize through a single mutex: schema changes are rare
// (CREATE TABLE) compared to row reads/writes, so a simple lock beats the
// complexity of finer-grained locking.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storage.Wrap(storage.Io, fmt.Sprintf("creating schema directory %q", dir), err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

// Exists reports whether a schema file for table is present.
func (s *Store) Exists(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path(table))
	return err == nil
}

// Save writes schema to disk with an atomic write-and-rename. It never
// replaces a prior file: it returns storage.AlreadyExists if a schema for
// this table is already on disk.
func (s *Store) Save(schema storage.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(schema.TableName)
	if _, err := os.Stat(path); err == nil {
		return storage.NewError(storage.AlreadyExists, fmt.Sprintf("table %q already exists", schema.TableName))
	}

	doc, err := encodeSchema(schema)
	if err != nil {
		return storage.Wrap(storage.Io, fmt.Sprintf("encoding schema for table %q", schema.TableName), err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(doc)); err != nil {
		return storage.Wrap(storage.Io, fmt.Sprintf("writing schema for table %q", schema.TableName), err)
	}
	return nil
}

// Load reads the schema for table, returning storage.NotFound if no schema
// file exists.
func (s *Store) Load(table string) (storage.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Schema{}, storage.NewError(storage.NotFound, fmt.Sprintf("table %q not found", table))
		}
		return storage.Schema{}, storage.Wrap(storage.Io, fmt.Sprintf("reading schema for table %q", table), err)
	}

	var schema storage.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return storage.Schema{}, storage.Wrap(storage.CorruptRow, fmt.Sprintf("decoding schema for table %q", table), err)
	}
	return schema, nil
}

// List returns the names of every table with a schema on disk, sorted
// lexically for deterministic iteration order.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storage.Wrap(storage.Io, "listing schema directory", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".json")])
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the schema file for table, returning storage.NotFound if
// no schema file exists.
func (s *Store) Delete(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(table)); err != nil {
		if os.IsNotExist(err) {
			return storage.NewError(storage.NotFound, fmt.Sprintf("table %q not found", table))
		}
		return storage.Wrap(storage.Io, fmt.Sprintf("deleting schema for table %q", table), err)
	}
	return nil
}

// encodeSchema marshals schema the way the original tool always emitted
// it: primary_key present even when empty (as null), rather than Go's
// default omitempty-on-zero-value JSON tagging.
func encodeSchema(schema storage.Schema) ([]byte, error) {
	doc := struct {
		TableName  string           `json:"table_name"`
		Columns    []storage.Column `json:"columns"`
		PrimaryKey *string          `json:"primary_key"`
	}{
		TableName: schema.TableName,
		Columns:   schema.Columns,
	}
	if schema.PrimaryKey != "" {
		doc.PrimaryKey = &schema.PrimaryKey
	}
	return json.MarshalIndent(doc, "", "  ")
}
