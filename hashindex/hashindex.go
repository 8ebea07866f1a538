// Package hashindex implements BadSUBD's on-disk hash index over a single
// INT column: key -> the set of heap row offsets holding that key.
//
// On-disk format is a flat repetition of buckets, each:
//
//	8 bytes   key, big-endian uint64
//	4 bytes   offset count, big-endian uint32
//	8*N bytes offsets, big-endian uint64 each
//
// Buckets are written in ascending key order on every save; there is no
// separate header, since the file's length alone determines end-of-data.
package hashindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/natefinch/atomic"

	"badsubd/storage"
)

// Index is an in-memory hash index backed by a file at path. Every
// mutation rewrites the entire file, matching the original implementation
// (index files are expected to be small: one bucket per distinct key, a
// handful of offsets per bucket).
type Index struct {
	mu      sync.RWMutex
	path    string
	buckets map[uint64][]int64
}

// Create initializes a new, empty index file at path.
func Create(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, storage.NewError(storage.AlreadyExists, fmt.Sprintf("index file %q already exists", path))
	}
	idx := &Index{path: path, buckets: make(map[uint64][]int64)}
	if err := idx.save(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Open loads an existing index file at path.
func Open(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NewError(storage.NotFound, fmt.Sprintf("index file %q not found", path))
		}
		return nil, storage.Wrap(storage.Io, fmt.Sprintf("reading index file %q", path), err)
	}

	buckets, err := decode(data)
	if err != nil {
		return nil, err
	}
	return &Index{path: path, buckets: buckets}, nil
}

func decode(data []byte) (map[uint64][]int64, error) {
	buckets := make(map[uint64][]int64)
	pos := 0
	for pos < len(data) {
		if pos+12 > len(data) {
			return nil, storage.NewError(storage.CorruptRow, "truncated index bucket header")
		}
		key := binary.BigEndian.Uint64(data[pos : pos+8])
		count := binary.BigEndian.Uint32(data[pos+8 : pos+12])
		pos += 12

		need := int(count) * 8
		if pos+need > len(data) {
			return nil, storage.NewError(storage.CorruptRow, "truncated index bucket offsets")
		}
		offsets := make([]int64, count)
		for i := range offsets {
			offsets[i] = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
		}
		buckets[key] = offsets
	}
	return buckets, nil
}

// save rewrites the whole index file atomically, with buckets in ascending
// key order for deterministic file content across runs.
func (idx *Index) save() error {
	keys := make([]uint64, 0, len(idx.buckets))
	for k := range idx.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var buf bytes.Buffer
	for _, key := range keys {
		offsets := idx.buckets[key]
		var head [12]byte
		binary.BigEndian.PutUint64(head[0:8], key)
		binary.BigEndian.PutUint32(head[8:12], uint32(len(offsets)))
		buf.Write(head[:])
		for _, off := range offsets {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(off))
			buf.Write(b[:])
		}
	}

	if err := atomic.WriteFile(idx.path, bytes.NewReader(buf.Bytes())); err != nil {
		return storage.Wrap(storage.Io, fmt.Sprintf("writing index file %q", idx.path), err)
	}
	return nil
}

// Insert records that key maps to offset, appending to any existing
// bucket for key.
func (idx *Index) Insert(key uint64, offset int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.buckets[key] = append(idx.buckets[key], offset)
	return idx.save()
}

// Find returns the heap offsets recorded for key. The returned slice is a
// copy, so callers may mutate it without affecting the index.
func (idx *Index) Find(key uint64) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	offsets := idx.buckets[key]
	out := make([]int64, len(offsets))
	copy(out, offsets)
	return out
}

// Delete removes key's bucket entirely when offset is nil, matching the
// original's delete(key, row_position=None). With a non-nil offset, every
// occurrence of that offset is stripped from key's bucket (not just the
// first), and the bucket itself is removed once empty. Deleting a key or
// offset that is not present is a no-op.
func (idx *Index) Delete(key uint64, offset *int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.buckets[key]; !ok {
		return nil
	}

	if offset == nil {
		delete(idx.buckets, key)
		return idx.save()
	}

	offsets := idx.buckets[key]
	kept := offsets[:0]
	for _, o := range offsets {
		if o != *offset {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		delete(idx.buckets, key)
	} else {
		idx.buckets[key] = kept
	}
	return idx.save()
}

// SizeBytes returns the on-disk size of the index file.
func (idx *Index) SizeBytes() (int64, error) {
	info, err := os.Stat(idx.path)
	if err != nil {
		return 0, storage.Wrap(storage.Io, fmt.Sprintf("stat index file %q", idx.path), err)
	}
	return info.Size(), nil
}

// KeyCount returns the number of distinct keys currently indexed.
func (idx *Index) KeyCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.buckets)
}
