// Package wal implements the append-only write-ahead log that makes every
// write durable before it is applied to the memtable.
package wal

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/shaledb/shaledb/internal/record"
	"go.uber.org/zap"
)

// WAL manages one write-ahead log segment. Records are appended as JSON
// lines and fsynced before Append returns, so a crash never loses an
// acknowledged write.
type WAL struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	logger *zap.Logger
}

// Open opens the log segment at path, creating it if absent. A torn trailing
// line left by a crash mid-append is truncated away first, so the segment
// always ends at a record boundary before new appends are accepted.
func Open(path string, logger *zap.Logger) (*WAL, error) {
	if err := repairTail(path, logger); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal %s: %w", path, err)
	}

	return &WAL{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
		logger: logger,
	}, nil
}

// repairTail restores the record-boundary invariant after a crash. A trailing
// line that fails to decode is truncated from the segment; a final record
// whose newline never made it to disk gets its terminator written back. A
// malformed line with lines after it is left in place so Replay reports it as
// corruption instead of silently rewriting history.
func repairTail(path string, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read wal %s for recovery: %w", path, err)
	}

	valid := 0
	terminate := false
	for valid < len(data) {
		end := len(data)
		if nl := bytes.IndexByte(data[valid:], '\n'); nl >= 0 {
			end = valid + nl
		}

		var rec record.Record
		wellFormed := record.Unmarshal(data[valid:end], &rec) == nil

		if end == len(data) {
			// Unterminated tail: keep the record if it decodes, only the
			// newline was lost.
			terminate = wellFormed
			break
		}
		if !wellFormed {
			if end+1 < len(data) {
				return nil
			}
			break
		}
		valid = end + 1
	}

	if valid == len(data) && !terminate {
		return nil
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open wal %s for recovery: %w", path, err)
	}

	if terminate {
		_, err = file.WriteAt([]byte{'\n'}, int64(len(data)))
	} else {
		logger.Warn("truncating torn trailing wal line",
			zap.String("path", path),
			zap.Int("bytes_dropped", len(data)-valid))
		err = file.Truncate(int64(valid))
	}
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to repair wal %s tail: %w", path, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync wal %s after recovery: %w", path, err)
	}
	return file.Close()
}

// Append encodes one record as a log line, appends it, and forces it durable
// (flush + fsync) before returning. Only after Append succeeds may the caller
// apply the write to the memtable.
func (w *WAL) Append(key, value []byte) error {
	line, err := record.Marshal(record.Record{Key: key, Value: value})
	if err != nil {
		return err
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to append to wal %s: %w", w.path, err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to append to wal %s: %w", w.path, err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush wal %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync wal %s: %w", w.path, err)
	}

	return nil
}

// Replay reads the segment from the start and returns one record per
// well-formed line, in file order. A line that fails to decode and is the last
// line of the file is treated as a torn write from a crash mid-append and
// dropped; a malformed line anywhere earlier aborts with a corruption error.
func (w *WAL) Replay() ([]record.Record, error) {
	file, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal %s for replay: %w", w.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []record.Record
	var torn error

	for scanner.Scan() {
		if torn != nil {
			// The bad line had lines after it, so it cannot be a torn tail.
			return nil, fmt.Errorf("wal %s: malformed non-trailing line: %w", w.path, torn)
		}

		var rec record.Record
		if err := record.Unmarshal(scanner.Bytes(), &rec); err != nil {
			torn = err
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wal %s: %w", w.path, err)
	}

	if torn != nil {
		w.logger.Warn("dropping torn trailing wal line",
			zap.String("path", w.path),
			zap.Int("records_kept", len(records)))
	}

	return records, nil
}

// Path returns the segment's file path.
func (w *WAL) Path() string {
	return w.path
}

// Close flushes, syncs, and closes the segment.
func (w *WAL) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush wal %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync wal %s: %w", w.path, err)
	}
	return w.file.Close()
}
