package engine_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shaledb/shaledb/internal/config"
	"github.com/shaledb/shaledb/internal/engine"
	"github.com/shaledb/shaledb/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openEngine(t *testing.T, dir string) *engine.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	e, err := engine.Open(dir, cfg, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	return e
}

func TestEngine_PutGetFlushScenario(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir)
	defer e.Close()

	require.NoError(t, e.Put([]byte("foo"), []byte("bar")))
	require.NoError(t, e.Put([]byte("baz"), []byte("qux")))
	require.NoError(t, e.Put([]byte("foo"), []byte("goo")))

	val, err := e.Get([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, []byte("goo"), val, "last put wins pre-flush")

	meta, err := e.Flush()
	require.NoError(t, err)
	assert.NotZero(t, meta.WrittenAt)

	// Now served from the new SSTable, memtable empty.
	val, err = e.Get([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, []byte("goo"), val)

	val, err = e.Get([]byte("baz"))
	require.NoError(t, err)
	assert.Equal(t, []byte("qux"), val)

	// A fresh put masks the flushed value.
	require.NoError(t, e.Put([]byte("foo"), []byte("loo")))
	val, err = e.Get([]byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, []byte("loo"), val)
}

func TestEngine_GetMissing(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir)
	defer e.Close()

	_, err := e.Get([]byte("nothing"))
	assert.ErrorIs(t, err, engine.ErrNotFound)

	require.NoError(t, e.Put([]byte("present"), []byte("yes")))
	_, err = e.Flush()
	require.NoError(t, err)

	_, err = e.Get([]byte("nothing"))
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestEngine_NewestTableWins(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir)
	defer e.Close()

	require.NoError(t, e.Put([]byte("key"), []byte("old")))
	first, err := e.Flush()
	require.NoError(t, err)

	require.NoError(t, e.Put([]byte("key"), []byte("new")))
	second, err := e.Flush()
	require.NoError(t, err)

	assert.Greater(t, second.WrittenAt, first.WrittenAt)

	val, err := e.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), val, "table with greater creation timestamp wins")
}

func TestEngine_RecoverAfterReopen(t *testing.T) {
	dir := t.TempDir()

	e := openEngine(t, dir)
	require.NoError(t, e.Put([]byte("flushed"), []byte("on-disk")))
	meta, err := e.Flush()
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("unflushed"), []byte("wal-only")))
	wantWAL := e.Manifest().WAL
	require.NoError(t, e.Close())

	e2 := openEngine(t, dir)
	defer e2.Close()

	// Flushed data, WAL-only data, and the rotation target all survive.
	val, err := e2.Get([]byte("flushed"))
	require.NoError(t, err)
	assert.Equal(t, []byte("on-disk"), val)

	val, err = e2.Get([]byte("unflushed"))
	require.NoError(t, err)
	assert.Equal(t, []byte("wal-only"), val)

	assert.Equal(t, wantWAL, e2.Manifest().WAL)
	assert.Contains(t, e2.Manifest().SSTables, meta.MetaPath)
}

func TestEngine_RecoverAfterTornWALWrite(t *testing.T) {
	dir := t.TempDir()

	e := openEngine(t, dir)
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	walPath := e.Manifest().WAL
	require.NoError(t, e.Close())

	// A crash mid-append leaves a partial line at the tail of the segment.
	f, err := os.OpenFile(walPath, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"key":"YQ==","val`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e2 := openEngine(t, dir)
	val, err := e2.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	require.NoError(t, e2.Put([]byte("b"), []byte("2")))
	require.NoError(t, e2.Close())

	// The write acknowledged after recovery must survive another restart.
	e3 := openEngine(t, dir)
	defer e3.Close()

	val, err = e3.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	val, err = e3.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), val)
}

func TestEngine_ReopenWithManyTables(t *testing.T) {
	dir := t.TempDir()

	e := openEngine(t, dir)
	for i := 0; i < 5; i++ {
		key := fmt.Appendf(nil, "key%d", i)
		require.NoError(t, e.Put(key, fmt.Appendf(nil, "value%d", i)))
		_, err := e.Flush()
		require.NoError(t, err)
	}
	require.NoError(t, e.Close())

	// The concurrent fan-out open must land in newest-first order.
	e2 := openEngine(t, dir)
	defer e2.Close()

	require.Len(t, e2.Manifest().SSTables, 5)
	for i := 0; i < 5; i++ {
		val, err := e2.Get(fmt.Appendf(nil, "key%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Appendf(nil, "value%d", i), val)
	}
}

func TestEngine_FlushRotatesWAL(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, dir)
	defer e.Close()

	before := e.Manifest().WAL
	require.NoError(t, e.Put([]byte("a"), []byte("1")))

	meta, err := e.Flush()
	require.NoError(t, err)

	after := e.Manifest().WAL
	assert.NotEqual(t, before, after)

	// The old segment is kept on disk; retention is the caller's concern.
	_, err = os.Stat(before)
	assert.NoError(t, err)

	// New writes land in the new segment only.
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	info, err := os.Stat(after)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Contains(t, e.Manifest().SSTables, meta.MetaPath)
}

func TestEngine_ManifestInitializedOnFirstOpen(t *testing.T) {
	dir := t.TempDir()

	e := openEngine(t, dir)
	man := e.Manifest()
	assert.Empty(t, man.SSTables)
	assert.NotEmpty(t, man.WAL)
	require.NoError(t, e.Close())

	// meta.json was persisted on first open.
	_, err := os.Stat(dir + "/meta.json")
	assert.NoError(t, err)
}
