// Package storage implements BadSUBD's fixed-width binary row format: the
// translation between a logical row (column name -> value) and the exact
// byte layout persisted in a table's heap file.
//
// # Row Layout
//
//	byte 0           tombstone flag (0 = live, 1 = deleted)
//	byte 1..         columns in schema order:
//	                   INT            8 bytes, big-endian unsigned
//	                   VARCHAR(size)  size*4 bytes, UTF-32LE, NUL-padded
//
// row_size is fixed for the lifetime of a schema: 1 + sum(8 for INT,
// 4*size for VARCHAR(size)).
package storage

import "fmt"

// ColumnType is the on-disk type tag for a column. BadSUBD supports exactly
// two: unsigned 64-bit integers and fixed-capacity Unicode strings.
type ColumnType string

const (
	Int     ColumnType = "INT"
	Varchar ColumnType = "VARCHAR"
)

// Column describes one column of a table: its name, type, and (for VARCHAR)
// its character capacity. INT columns carry Size == 0.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	Size int        `json:"size"`
}

// byteWidth returns this column's fixed width in bytes.
func (c Column) byteWidth() int {
	switch c.Type {
	case Int:
		return 8
	case Varchar:
		return c.Size * 4
	default:
		return 0
	}
}

// Schema is a table name plus its ordered columns, the order that defines
// both on-disk column offsets and the binding order for INSERTs that omit
// an explicit column list.
//
// PrimaryKey names an optional primary-key column. It is persisted for
// documentation purposes only; the engine never enforces uniqueness on it
// (see Open Question Q4).
type Schema struct {
	TableName  string   `json:"table_name"`
	Columns    []Column `json:"columns"`
	PrimaryKey string   `json:"primary_key,omitempty"`
}

// Column looks up a column definition by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// RowSize computes the fixed byte width of one row under this schema:
// one tombstone byte plus each column's fixed width.
func (s Schema) RowSize() int {
	size := 1
	for _, c := range s.Columns {
		size += c.byteWidth()
	}
	return size
}

// ColumnOffset returns the byte offset of column name within a serialized
// row (after the tombstone byte), or UnknownColumn if no such column
// exists.
func (s Schema) ColumnOffset(name string) (int, error) {
	offset := 1
	for _, c := range s.Columns {
		if c.Name == name {
			return offset, nil
		}
		offset += c.byteWidth()
	}
	return 0, NewError(UnknownColumn, fmt.Sprintf("column %q not found in table %q", name, s.TableName))
}
