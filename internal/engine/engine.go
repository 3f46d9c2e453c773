// Package engine composes the write-ahead log, the memtable, and the opened
// SSTables into the storage engine's put/get/flush/recover cycle.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shaledb/shaledb/internal/config"
	"github.com/shaledb/shaledb/internal/memtable"
	"github.com/shaledb/shaledb/internal/metrics"
	"github.com/shaledb/shaledb/internal/record"
	"github.com/shaledb/shaledb/internal/sstable"
	"github.com/shaledb/shaledb/internal/wal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	manifestFile = "meta.json"
	walFile      = "log"
)

// ErrNotFound is returned by Get when no tier holds a value for the key.
var ErrNotFound = errors.New("shaledb: key not found")

// lookup is the single-method capability every storage tier answers:
// the memtable and each SSTable implement it independently, and the engine
// composes them by fixed priority.
type lookup interface {
	Get(key []byte) (value []byte, ok bool, err error)
}

// Engine is one storage engine instance over one directory. It is not
// internally synchronized: Put, Get, and Flush on the same instance must be
// serialized by the caller. The directory is assumed owned by exactly one
// engine at a time.
type Engine struct {
	dir      string
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	wal      *wal.WAL
	mem      *memtable.Memtable
	tables   []*sstable.SSTable
	manifest record.Manifest
}

// Open opens (or creates) the engine rooted at dir: it loads or initializes
// the persisted manifest, replays the active WAL into a fresh memtable, and
// opens every listed SSTable. SSTable opens fan out concurrently, then the
// results are joined and sorted newest-first, so behavior never depends on
// completion order.
func Open(dir string, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	manifest, err := loadOrInitManifest(dir)
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(manifest.WAL, logger)
	if err != nil {
		return nil, err
	}

	mem, err := memtable.Hydrate(w)
	if err != nil {
		w.Close()
		return nil, err
	}

	tables, err := openTables(manifest.SSTables)
	if err != nil {
		w.Close()
		return nil, err
	}
	sstable.SortNewestFirst(tables)

	logger.Info("engine opened",
		zap.String("dir", dir),
		zap.Int("memtable_entries", mem.Len()),
		zap.Int("sstables", len(tables)))

	m.MemtableEntries.Set(float64(mem.Len()))
	m.SSTablesOpen.Set(float64(len(tables)))

	return &Engine{
		dir:      dir,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		wal:      w,
		mem:      mem,
		tables:   tables,
		manifest: manifest,
	}, nil
}

// Put appends the write to the WAL and, only once it is durable, applies it
// to the memtable. A crash between the two leaves the WAL as the single
// source of truth for recovery.
func (e *Engine) Put(key, value []byte) error {
	if err := e.wal.Append(key, value); err != nil {
		return err
	}
	e.mem.Put(key, value)

	e.metrics.PutsTotal.Inc()
	e.metrics.PutBytes.Add(float64(len(key) + len(value)))
	e.metrics.MemtableEntries.Set(float64(e.mem.Len()))
	return nil
}

// Get checks the memtable first, then the SSTables newest to oldest. The
// first hit wins, which gives latest-write-wins across all tiers. Absence
// everywhere yields ErrNotFound.
func (e *Engine) Get(key []byte) ([]byte, error) {
	e.metrics.GetsTotal.Inc()

	sources := make([]lookup, 0, 1+len(e.tables))
	sources = append(sources, e.mem)
	for _, t := range e.tables {
		sources = append(sources, t)
	}

	for _, src := range sources {
		value, ok, err := src.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			return value, nil
		}
	}

	e.metrics.GetMisses.Inc()
	return nil, ErrNotFound
}

// Flush drains the memtable into a new SSTable, rotates the WAL to a fresh
// segment, persists the updated manifest, and only then installs the new
// state in memory. It returns the new table's descriptor. The old WAL segment
// is closed but kept on disk; retention is the caller's concern.
func (e *Engine) Flush() (record.TableMeta, error) {
	start := time.Now()

	records := e.mem.Drain()
	table, err := sstable.Construct(e.dir, records, e.cfg.IndexInterval, e.logger)
	if err != nil {
		return record.TableMeta{}, err
	}
	meta := table.Meta()

	walPath := filepath.Join(e.dir, fmt.Sprintf("%s-%d", walFile, meta.WrittenAt))
	newWAL, err := wal.Open(walPath, e.logger)
	if err != nil {
		table.Close()
		return record.TableMeta{}, err
	}

	manifest := record.Manifest{
		SSTables: append(append([]string{}, e.manifest.SSTables...), meta.MetaPath),
		WAL:      walPath,
	}
	if err := writeManifest(e.dir, manifest); err != nil {
		table.Close()
		newWAL.Close()
		return record.TableMeta{}, err
	}

	oldWAL := e.wal
	e.wal = newWAL
	e.manifest = manifest
	e.tables = append([]*sstable.SSTable{table}, e.tables...)

	if err := oldWAL.Close(); err != nil {
		e.logger.Warn("failed to close rotated wal segment", zap.Error(err))
	}

	e.metrics.FlushesTotal.Inc()
	e.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	e.metrics.MemtableEntries.Set(0)
	e.metrics.SSTablesOpen.Set(float64(len(e.tables)))

	e.logger.Info("memtable flushed",
		zap.Int64("table", meta.WrittenAt),
		zap.Int("records", len(records)),
		zap.String("wal", walPath))

	return meta, nil
}

// Manifest returns the engine's current persisted metadata.
func (e *Engine) Manifest() record.Manifest {
	return e.manifest
}

// Close releases the WAL and every open SSTable.
func (e *Engine) Close() error {
	err := e.wal.Close()
	for _, t := range e.tables {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// loadOrInitManifest reads dir's manifest, or initializes and persists an
// empty one pointing at a fresh WAL path.
func loadOrInitManifest(dir string) (record.Manifest, error) {
	path := filepath.Join(dir, manifestFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var manifest record.Manifest
		if uerr := record.Unmarshal(data, &manifest); uerr != nil {
			return record.Manifest{}, fmt.Errorf("manifest %s: %w", path, uerr)
		}
		return manifest, nil
	case os.IsNotExist(err):
		manifest := record.Manifest{
			SSTables: []string{},
			WAL:      filepath.Join(dir, walFile),
		}
		if werr := writeManifest(dir, manifest); werr != nil {
			return record.Manifest{}, werr
		}
		return manifest, nil
	default:
		return record.Manifest{}, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
}

// writeManifest persists the manifest wholesale via a temp file and rename,
// so a crash mid-write never leaves a half-written manifest behind.
func writeManifest(dir string, manifest record.Manifest) error {
	data, err := record.Marshal(manifest)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, manifestFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close manifest temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, manifestFile)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install manifest: %w", err)
	}
	return nil
}

// openTables opens every listed SSTable concurrently. Each table is
// self-contained and read-only, so the opens are independent; the caller
// sorts the joined results before first use.
func openTables(metaPaths []string) ([]*sstable.SSTable, error) {
	tables := make([]*sstable.SSTable, len(metaPaths))

	var g errgroup.Group
	for i, path := range metaPaths {
		i, path := i, path
		g.Go(func() error {
			t, err := sstable.Open(path)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, t := range tables {
			if t != nil {
				t.Close()
			}
		}
		return nil, err
	}
	return tables, nil
}
