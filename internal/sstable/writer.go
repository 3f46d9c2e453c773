package sstable

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shaledb/shaledb/internal/record"
	"go.uber.org/zap"
)

// Construct builds a new SSTable in dir from records, which must already be
// ascending by key (the memtable's drained output). Every interval-th record
// is sampled into the sparse index.
//
// Durability ordering: the data file is flushed and synced first, then the
// index, then the descriptor. Each file's existence implies the previous one
// is complete, so a crash mid-construction never leaves a descriptor pointing
// at partial data.
func Construct(dir string, records []record.Record, interval int, logger *zap.Logger) (*SSTable, error) {
	if interval <= 0 {
		interval = DefaultIndexInterval
	}

	id := nextID()
	dataPath := filepath.Join(dir, fmt.Sprintf("%d.sst", id))
	indexPath := filepath.Join(dir, fmt.Sprintf("%d.idx", id))
	metaPath := filepath.Join(dir, fmt.Sprintf("%d.meta", id))

	index, err := writeData(dataPath, records, interval)
	if err != nil {
		return nil, err
	}

	indexData, err := record.Marshal(index)
	if err != nil {
		return nil, err
	}
	if err := writeFileSync(indexPath, indexData); err != nil {
		return nil, err
	}

	meta := record.TableMeta{
		WrittenAt: id,
		MetaPath:  metaPath,
		DataPath:  dataPath,
		IndexPath: indexPath,
	}
	metaData, err := record.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := writeFileSync(metaPath, metaData); err != nil {
		return nil, err
	}

	logger.Debug("sstable constructed",
		zap.Int64("id", id),
		zap.Int("records", len(records)),
		zap.Int("index_entries", len(index)))

	return Open(metaPath)
}

// writeData writes the length-prefixed data file and returns the sparse index
// sampled while writing. Index offsets point at the start of each sampled
// record.
func writeData(path string, records []record.Record, interval int) ([]record.IndexEntry, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create sstable data %s: %w", path, err)
	}

	writer := bufio.NewWriter(file)
	index := make([]record.IndexEntry, 0, len(records)/interval+1)
	var offset int64

	for i, rec := range records {
		if i%interval == 0 {
			index = append(index, record.IndexEntry{Key: rec.Key, Offset: offset})
		}
		n, err := record.WriteFrame(writer, rec.Key, rec.Value)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("sstable data %s: %w", path, err)
		}
		offset += n
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to flush sstable data %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to sync sstable data %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close sstable data %s: %w", path, err)
	}

	return index, nil
}

// writeFileSync writes data to path and fsyncs before closing.
func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return file.Close()
}
