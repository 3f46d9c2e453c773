// Package memtable implements the in-memory sorted buffer holding the latest
// value per key since the last flush.
package memtable

import (
	"bytes"

	"github.com/shaledb/shaledb/internal/record"
	"github.com/shaledb/shaledb/internal/wal"
	"github.com/zhangyunhao116/skipmap"
)

type orderedMap = skipmap.FuncMap[[]byte, []byte]

func newOrderedMap() *orderedMap {
	return skipmap.NewFunc[[]byte, []byte](func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
}

// Memtable is an ordered mapping from key to value. Each key maps to at most
// one value, the most recent put. It is not synchronized against a concurrent
// Drain; the engine serializes access.
type Memtable struct {
	m *orderedMap
}

// New returns an empty memtable.
func New() *Memtable {
	return &Memtable{m: newOrderedMap()}
}

// Hydrate rebuilds a memtable by replaying the WAL and applying each record
// in file order, so later entries overwrite earlier ones for the same key.
func Hydrate(w *wal.WAL) (*Memtable, error) {
	records, err := w.Replay()
	if err != nil {
		return nil, err
	}

	mt := New()
	for _, rec := range records {
		mt.Put(rec.Key, rec.Value)
	}
	return mt, nil
}

// Put inserts or overwrites the value for key.
func (mt *Memtable) Put(key, value []byte) {
	mt.m.Store(key, value)
}

// Get returns the current value for key. The error is always nil; the
// signature is shared with the on-disk lookup tiers.
func (mt *Memtable) Get(key []byte) ([]byte, bool, error) {
	value, ok := mt.m.Load(key)
	return value, ok, nil
}

// Len returns the number of live keys.
func (mt *Memtable) Len() int {
	return mt.m.Len()
}

// Drain removes and returns all entries, ascending by key. The result feeds
// SSTable construction; the memtable is empty afterwards.
func (mt *Memtable) Drain() []record.Record {
	records := make([]record.Record, 0, mt.m.Len())
	mt.m.Range(func(key, value []byte) bool {
		records = append(records, record.Record{Key: key, Value: value})
		return true
	})
	mt.m = newOrderedMap()
	return records
}
