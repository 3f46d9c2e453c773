// Package record holds the structured records shared across the database and
// the codecs that put them on disk: a JSON codec for descriptors and log lines,
// and a length-prefixed binary framing for SSTable data files.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt marks data that could not be decoded. Callers distinguish it from
// plain I/O failures with errors.Is.
var ErrCorrupt = errors.New("shaledb: corrupt record")

// Record is a single key/value pair. Keys are compared byte-lexicographically.
type Record struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// IndexEntry points at the byte offset where a record starts in an SSTable
// data file. Entries in an index are strictly increasing by key.
type IndexEntry struct {
	Key    []byte `json:"key"`
	Offset int64  `json:"offset"`
}

// TableMeta is the persisted descriptor of one SSTable. WrittenAt doubles as
// the table's unique id and its recency ordering key.
type TableMeta struct {
	WrittenAt int64  `json:"written_at"`
	MetaPath  string `json:"meta_path"`
	DataPath  string `json:"data_path"`
	IndexPath string `json:"index_path"`
}

// Manifest is the engine's persisted metadata: descriptor paths of every
// flushed SSTable, oldest first, plus the path of the active WAL.
type Manifest struct {
	SSTables []string `json:"sstables"`
	WAL      string   `json:"wal"`
}

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// Unmarshal decodes JSON data into v. Decode failures wrap ErrCorrupt.
func Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
