package memtable_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shaledb/shaledb/internal/memtable"
	"github.com/shaledb/shaledb/internal/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemtable_PutAndGet(t *testing.T) {
	mt := memtable.New()

	mt.Put([]byte("key1"), []byte("value1"))

	val, ok, err := mt.Get([]byte("key1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("value1"), val)

	_, ok, err = mt.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemtable_LastWriteWins(t *testing.T) {
	mt := memtable.New()

	mt.Put([]byte("key"), []byte("first"))
	mt.Put([]byte("key"), []byte("second"))
	mt.Put([]byte("key"), []byte("third"))

	val, ok, err := mt.Get([]byte("key"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("third"), val)
	assert.Equal(t, 1, mt.Len())
}

func TestMemtable_DrainSortedAndEmpties(t *testing.T) {
	mt := memtable.New()

	// Insert out of key order.
	for _, k := range []string{"delta", "alpha", "charlie", "bravo"} {
		mt.Put([]byte(k), []byte("v-"+k))
	}

	records := mt.Drain()
	require.Len(t, records, 4)

	want := []string{"alpha", "bravo", "charlie", "delta"}
	for i, rec := range records {
		assert.Equal(t, []byte(want[i]), rec.Key)
		assert.Equal(t, []byte("v-"+want[i]), rec.Value)
	}

	assert.Equal(t, 0, mt.Len())
	_, ok, err := mt.Get([]byte("alpha"))
	require.NoError(t, err)
	assert.False(t, ok, "drained memtable should be empty")
}

func TestMemtable_HydrateMatchesDirectPuts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	w, err := wal.Open(path, zap.NewNop())
	require.NoError(t, err)

	direct := memtable.New()
	for i := 0; i < 20; i++ {
		key := fmt.Appendf(nil, "key%02d", i%7)
		value := fmt.Appendf(nil, "value%02d", i)
		require.NoError(t, w.Append(key, value))
		direct.Put(key, value)
	}

	hydrated, err := memtable.Hydrate(w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, direct.Len(), hydrated.Len())

	wantRecords := direct.Drain()
	gotRecords := hydrated.Drain()
	assert.Equal(t, wantRecords, gotRecords)
}
