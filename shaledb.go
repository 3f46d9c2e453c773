// Package shaledb is an embedded log-structured key-value storage engine.
//
// Writes are buffered in an in-memory memtable and made durable through an
// append-only write-ahead log before they are acknowledged. Flushing persists
// the memtable as an immutable sorted run (SSTable) with a sparse index and
// rotates the WAL, so a store recovers its full state after a restart. Reads
// check the memtable first and then the SSTables newest to oldest, giving
// latest-write-wins across all tiers.
//
// A DB instance is not safe for concurrent use: Put, Get, and Flush must be
// serialized by the caller, and a directory must be owned by exactly one open
// instance at a time.
//
// Example usage:
//
//	db, err := shaledb.Open("/path/to/db", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Put([]byte("key"), []byte("value")); err != nil {
//		log.Printf("put failed: %v", err)
//	}
//
//	value, err := db.Get([]byte("key"))
//	if errors.Is(err, shaledb.ErrNotFound) {
//		fmt.Println("no such key")
//	}
package shaledb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shaledb/shaledb/internal/config"
	"github.com/shaledb/shaledb/internal/engine"
	"github.com/shaledb/shaledb/internal/metrics"
	"github.com/shaledb/shaledb/internal/record"
	"go.uber.org/zap"
)

// Config is an alias for config.Config, re-exported for user convenience.
type Config = config.Config

// DefaultConfig returns a Config populated with default values. Re-exported
// for user convenience.
var DefaultConfig = config.DefaultConfig

// LoadConfig reads a YAML config file. Re-exported for user convenience.
var LoadConfig = config.Load

// ErrNotFound is returned by Get when the key is absent from every tier.
var ErrNotFound = engine.ErrNotFound

// ErrCorrupt marks on-disk data that could not be decoded, as opposed to a
// plain I/O failure.
var ErrCorrupt = record.ErrCorrupt

// DB is an open shaledb instance.
type DB struct {
	engine   *engine.Engine
	logger   *zap.Logger
	registry *prometheus.Registry
}

// Open opens or creates a database rooted at dir. The directory is created if
// it does not exist; an existing database is recovered by replaying its WAL
// and reopening its SSTables. A nil cfg uses defaults.
func Open(dir string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.FillDefaults()

	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	e, err := engine.Open(dir, cfg, logger, metrics.New(registry))
	if err != nil {
		return nil, err
	}

	return &DB{
		engine:   e,
		logger:   logger,
		registry: registry,
	}, nil
}

// Put writes a key-value pair, overwriting any existing value. The write is
// durable in the WAL before Put returns.
func (db *DB) Put(key, value []byte) error {
	return db.engine.Put(key, value)
}

// Get retrieves the current value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	return db.engine.Get(key)
}

// Flush persists the memtable as a new SSTable and starts a fresh WAL
// segment. SSTables accumulate without bound; there is no compaction, and
// read cost grows with the number of flushes.
func (db *DB) Flush() error {
	_, err := db.engine.Flush()
	return err
}

// Registry returns the Prometheus registry holding this instance's metrics.
// The embedding process decides whether and how to expose it.
func (db *DB) Registry() *prometheus.Registry {
	return db.registry
}

// Close releases the WAL and all open SSTable handles. The database should
// not be used afterwards.
func (db *DB) Close() error {
	err := db.engine.Close()
	_ = db.logger.Sync()
	return err
}
