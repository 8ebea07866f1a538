// Package heap implements the append-only, fixed-width row file that backs
// one table. Every heap file begins with a 16-byte header:
//
//	bytes 0-3    magic "CDB3"
//	bytes 4-11   row count, big-endian uint64
//	bytes 12-15  reserved, big-endian uint32 (always 0, reserved for a
//	             future format revision)
//
// followed by a flat sequence of fixed-width row slots, each exactly
// codec.RowSize() bytes, in insertion order. A row is never physically
// removed; DELETE flips its tombstone byte in place.
package heap

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"badsubd/storage"
)

const (
	magic      = "CDB3"
	headerSize = 16
)

// File is an open heap file for one table.
type File struct {
	mu    sync.RWMutex
	f     *os.File
	codec *storage.Codec
	count uint64
}

// Create initializes a new, empty heap file at path for the given schema.
// Returns storage.AlreadyExists if path already exists.
func Create(path string, schema storage.Schema) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, storage.NewError(storage.AlreadyExists, fmt.Sprintf("heap file %q already exists", path))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, storage.Wrap(storage.Io, fmt.Sprintf("creating heap file %q", path), err)
	}

	hf := &File{f: f, codec: storage.NewCodec(schema)}
	if err := hf.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return hf, nil
}

// Open opens an existing heap file at path for schema, validating its
// magic and reading the current row count from the header.
func Open(path string, schema storage.Schema) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewError(storage.NotFound, fmt.Sprintf("heap file %q not found", path))
		}
		return nil, storage.Wrap(storage.Io, fmt.Sprintf("opening heap file %q", path), err)
	}

	hf := &File{f: f, codec: storage.NewCodec(schema)}
	count, err := hf.readHeader()
	if err != nil {
		f.Close()
		return nil, err
	}
	hf.count = count
	return hf, nil
}

// Close closes the underlying file handle.
func (h *File) Close() error { return h.f.Close() }

// TotalRows returns the number of row slots ever written, live or
// tombstoned.
func (h *File) TotalRows() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *File) writeHeader() error {
	var hdr [headerSize]byte
	copy(hdr[0:4], magic)
	binary.BigEndian.PutUint64(hdr[4:12], h.count)
	// bytes 12:16 stay zero (reserved).
	if _, err := h.f.WriteAt(hdr[:], 0); err != nil {
		return storage.Wrap(storage.Io, "writing heap header", err)
	}
	return nil
}

func (h *File) readHeader() (uint64, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(h.f, hdr[:]); err != nil {
		return 0, storage.Wrap(storage.CorruptRow, "reading heap header", err)
	}
	if string(hdr[0:4]) != magic {
		return 0, storage.NewError(storage.CorruptRow, "heap file magic mismatch")
	}
	return binary.BigEndian.Uint64(hdr[4:12]), nil
}

func (h *File) offsetForIndex(idx uint64) int64 {
	return headerSize + int64(idx)*int64(h.codec.RowSize())
}

// Insert appends a new row, returning its zero-based row index. The header
// row count is updated and flushed before Insert returns, so a crash after
// a successful Insert never loses track of the new row.
func (h *File) Insert(values map[string]any) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.codec.Serialize(values)
	if err != nil {
		return 0, err
	}

	idx := h.count
	if _, err := h.f.WriteAt(data, h.offsetForIndex(idx)); err != nil {
		return 0, storage.Wrap(storage.Io, "appending row", err)
	}
	h.count++
	if err := h.writeHeader(); err != nil {
		return 0, err
	}
	return idx, nil
}

// ReadByIndex reads and decodes the row at zero-based index idx.
func (h *File) ReadByIndex(idx uint64) (storage.Row, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readAtLocked(idx)
}

func (h *File) readAtLocked(idx uint64) (storage.Row, error) {
	if idx >= h.count {
		return storage.Row{}, storage.NewError(storage.NotFound, fmt.Sprintf("row index %d out of range", idx))
	}

	buf := make([]byte, h.codec.RowSize())
	offset := h.offsetForIndex(idx)
	if _, err := h.f.ReadAt(buf, offset); err != nil {
		return storage.Row{}, storage.Wrap(storage.Io, fmt.Sprintf("reading row %d", idx), err)
	}

	row, err := h.codec.Deserialize(buf)
	if err != nil {
		return storage.Row{}, err
	}
	row.Offset = offset
	row.Index = idx
	return row, nil
}

// Update rewrites the row at idx in place. The caller is responsible for
// merging unchanged columns into values beforehand; Update always writes a
// full row.
func (h *File) Update(idx uint64, values map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if idx >= h.count {
		return storage.NewError(storage.NotFound, fmt.Sprintf("row index %d out of range", idx))
	}
	data, err := h.codec.Serialize(values)
	if err != nil {
		return err
	}
	if _, err := h.f.WriteAt(data, h.offsetForIndex(idx)); err != nil {
		return storage.Wrap(storage.Io, fmt.Sprintf("updating row %d", idx), err)
	}
	return nil
}

// MarkDeleted flips the tombstone byte of the row at idx without touching
// its column data.
func (h *File) MarkDeleted(idx uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if idx >= h.count {
		return storage.NewError(storage.NotFound, fmt.Sprintf("row index %d out of range", idx))
	}
	if _, err := h.f.WriteAt([]byte{1}, h.offsetForIndex(idx)); err != nil {
		return storage.Wrap(storage.Io, fmt.Sprintf("tombstoning row %d", idx), err)
	}
	return nil
}

// Truncate resets the heap to zero rows and shrinks the underlying file back
// to just the header, matching the no-WHERE DELETE behavior (the original's
// create_table_file reopens in mode 'wb', which has the same effect).
func (h *File) Truncate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.count = 0
	if err := h.f.Truncate(headerSize); err != nil {
		return storage.Wrap(storage.Io, "truncating heap file", err)
	}
	return h.writeHeader()
}

// Scan calls fn once per live (non-tombstoned) row slot, in index order,
// stopping early if fn returns false. A row that fails to decode
// (CorruptRow) is skipped rather than aborting the whole scan, matching the
// engine's tolerance for individual bad slots.
func (h *File) Scan(fn func(storage.Row) bool) error {
	h.mu.RLock()
	total := h.count
	h.mu.RUnlock()

	for i := uint64(0); i < total; i++ {
		h.mu.RLock()
		row, err := h.readAtLocked(i)
		h.mu.RUnlock()
		if err != nil || row.Deleted {
			continue
		}
		if !fn(row) {
			break
		}
	}
	return nil
}
