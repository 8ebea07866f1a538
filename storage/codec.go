package storage

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// utf32LittleEndian is the UTF-32LE encoder used for the VARCHAR write
// path. Building it once avoids re-allocating the transformer state on
// every Serialize call.
var utf32LittleEndian = utf32.UTF32(unicode.LittleEndian, unicode.IgnoreBOM)

// Row is a deserialized physical row: the decoded column values plus the
// synthetic bookkeeping fields a scan or point-read attaches. Deleted,
// Offset and Index are kept outside Values, so they are never projected
// into SQL/API output.
type Row struct {
	Values  map[string]any
	Deleted bool
	Offset  int64
	Index   uint64
}

// Codec serializes and deserializes rows for one Schema. RowSize is computed
// once at construction and is stable for the codec's lifetime (Invariant
// I5).
type Codec struct {
	schema  Schema
	rowSize int
}

// NewCodec builds a Codec for schema, precomputing its row size.
func NewCodec(schema Schema) *Codec {
	return &Codec{schema: schema, rowSize: schema.RowSize()}
}

// RowSize returns the fixed byte width of a row under this codec's schema.
func (c *Codec) RowSize() int { return c.rowSize }

// ColumnOffset delegates to the underlying schema.
func (c *Codec) ColumnOffset(name string) (int, error) {
	return c.schema.ColumnOffset(name)
}

// Serialize encodes a logical row (column name -> value) into exactly
// RowSize() bytes. Missing values encode as zero/"" for their column.
// Returns TypeMismatch for a value whose Go type doesn't match the column,
// or OutOfRange for an INT value too large to hold in a uint64 (Go's type
// system already forbids negative values for the uint64 input form; values
// arriving as int/int64/float64, such as float64 numbers decoded from the
// HTTP API's JSON bodies, are range-checked here).
func (c *Codec) Serialize(values map[string]any) ([]byte, error) {
	buf := make([]byte, c.rowSize)
	// buf[0] is the tombstone byte, left 0 (live) on insert.
	pos := 1

	for _, col := range c.schema.Columns {
		v, present := values[col.Name]

		switch col.Type {
		case Int:
			n, err := toUint64(col.Name, v, present)
			if err != nil {
				return nil, err
			}
			binary.BigEndian.PutUint64(buf[pos:pos+8], n)
			pos += 8

		case Varchar:
			width := col.Size * 4
			s, err := toVarcharString(col.Name, v, present)
			if err != nil {
				return nil, err
			}
			encoded, err := encodeUTF32LE(truncateRunes(s, col.Size))
			if err != nil {
				return nil, Wrap(TypeMismatch, fmt.Sprintf("column %q: encoding failure", col.Name), err)
			}
			copy(buf[pos:pos+width], encoded) // remainder stays NUL
			pos += width
		}
	}

	return buf, nil
}

// Deserialize decodes exactly RowSize() bytes into a Row. CorruptRow is
// returned if data is not exactly RowSize() bytes long.
func (c *Codec) Deserialize(data []byte) (Row, error) {
	if len(data) != c.rowSize {
		return Row{}, NewError(CorruptRow, fmt.Sprintf("expected %d bytes, got %d", c.rowSize, len(data)))
	}

	row := Row{Values: make(map[string]any, len(c.schema.Columns))}
	row.Deleted = data[0] != 0
	pos := 1

	for _, col := range c.schema.Columns {
		switch col.Type {
		case Int:
			row.Values[col.Name] = binary.BigEndian.Uint64(data[pos : pos+8])
			pos += 8
		case Varchar:
			width := col.Size * 4
			row.Values[col.Name] = decodeUTF32LELenient(data[pos : pos+width])
			pos += width
		}
	}

	return row, nil
}

// toUint64 validates and extracts an INT value. Accepted Go types: uint64
// (the canonical form), int (non-negative), and float64 (as produced by
// some JSON decoders), all of which must be whole, non-negative, and fit
// in 64 bits.
func toUint64(column string, v any, present bool) (uint64, error) {
	if !present || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, NewError(OutOfRange, fmt.Sprintf("column %q: negative INT value %d", column, n))
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, NewError(OutOfRange, fmt.Sprintf("column %q: negative INT value %d", column, n))
		}
		return uint64(n), nil
	case float64:
		if n < 0 {
			return 0, NewError(OutOfRange, fmt.Sprintf("column %q: negative INT value %v", column, n))
		}
		if n != float64(uint64(n)) {
			return 0, NewError(OutOfRange, fmt.Sprintf("column %q: INT value %v is not a whole number", column, n))
		}
		return uint64(n), nil
	default:
		return 0, NewError(TypeMismatch, fmt.Sprintf("column %q: expected INT, got %T", column, v))
	}
}

func toVarcharString(column string, v any, present bool) (string, error) {
	if !present || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", NewError(TypeMismatch, fmt.Sprintf("column %q: expected VARCHAR, got %T", column, v))
	}
	return s, nil
}

// truncateRunes truncates s to at most maxChars Unicode code points,
// matching the original's character-count (not byte-count) truncation.
func truncateRunes(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}

// encodeUTF32LE encodes s as UTF-32LE using the x/text transformer. The
// result is always len(s-as-runes)*4 bytes; callers size the destination
// buffer and rely on the remainder staying NUL-padded.
func encodeUTF32LE(s string) ([]byte, error) {
	out, _, err := transform.Bytes(utf32LittleEndian.NewEncoder(), []byte(s))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeUTF32LELenient implements the normative decode rule: strip
// trailing NUL bytes, pad the remainder to a multiple of 4, then decode
// each 4-byte little-endian group as one Unicode code point, silently
// dropping any group that is not a valid code point (surrogate halves,
// values above U+10FFFF) rather than erroring or substituting U+FFFD.
//
// This is implemented by hand rather than through an x/text decoder:
// x/text's UTF-32 decoder substitutes U+FFFD for invalid input, while the
// format this mirrors (Python's `bytes.decode('utf-32-le', errors='ignore')`)
// drops the offending code unit entirely — a different leniency policy
// that has no ready-made equivalent in the ecosystem decoder.
func decodeUTF32LELenient(data []byte) string {
	trimmed := strings.TrimRight(string(data), "\x00")
	if len(trimmed) == 0 {
		return ""
	}
	padded := []byte(trimmed)
	if rem := len(padded) % 4; rem != 0 {
		padded = append(padded, make([]byte, 4-rem)...)
	}

	var b strings.Builder
	for i := 0; i+4 <= len(padded); i += 4 {
		v := binary.LittleEndian.Uint32(padded[i : i+4])
		r := rune(v)
		if v > utf8.MaxRune || (v >= 0xD800 && v <= 0xDFFF) || !utf8.ValidRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
