// Package sstable implements the immutable sorted run format: a data file of
// length-prefixed records ascending by key, a sparse index sampled every few
// records, and a descriptor tying the files together. Tables are built once by
// a memtable flush and are read-only thereafter.
package sstable

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shaledb/shaledb/internal/record"
)

// DefaultIndexInterval is how many data records separate two sparse index
// entries.
const DefaultIndexInterval = 16

// SSTable is an opened, read-only sorted run. The full sparse index is kept
// resident; the data file handle stays open for the table's lifetime.
type SSTable struct {
	meta     record.TableMeta
	data     *os.File
	dataSize int64
	index    []record.IndexEntry
}

// Open reads the descriptor at metaPath, opens the data file for reading, and
// loads the sparse index into memory.
func Open(metaPath string) (*SSTable, error) {
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sstable descriptor %s: %w", metaPath, err)
	}

	var meta record.TableMeta
	if err := record.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("sstable descriptor %s: %w", metaPath, err)
	}

	indexData, err := os.ReadFile(meta.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sstable index %s: %w", meta.IndexPath, err)
	}

	var index []record.IndexEntry
	if err := record.Unmarshal(indexData, &index); err != nil {
		return nil, fmt.Errorf("sstable index %s: %w", meta.IndexPath, err)
	}

	data, err := os.Open(meta.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sstable data %s: %w", meta.DataPath, err)
	}

	stat, err := data.Stat()
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("failed to stat sstable data %s: %w", meta.DataPath, err)
	}

	return &SSTable{
		meta:     meta,
		data:     data,
		dataSize: stat.Size(),
		index:    index,
	}, nil
}

// Meta returns the table's descriptor.
func (t *SSTable) Meta() record.TableMeta {
	return t.meta
}

// Close releases the data file handle.
func (t *SSTable) Close() error {
	return t.data.Close()
}

// SortNewestFirst orders tables by descending creation timestamp, the read
// priority the engine relies on.
func SortNewestFirst(tables []*SSTable) {
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].meta.WrittenAt > tables[j].meta.WrittenAt
	})
}

// lastID makes creation timestamps strictly increasing within a process, so
// rapid successive flushes never collide on the second-resolution id.
var lastID atomic.Int64

func nextID() int64 {
	for {
		last := lastID.Load()
		id := time.Now().Unix()
		if id <= last {
			id = last + 1
		}
		if lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}
