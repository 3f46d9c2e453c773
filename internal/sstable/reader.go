package sstable

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/shaledb/shaledb/internal/record"
)

// Get looks key up in the table. It floor-searches the sparse index for the
// scan start, then decodes records sequentially until the key is found or
// passed. Absent keys return (nil, false, nil); errors are I/O or corruption.
func (t *SSTable) Get(key []byte) ([]byte, bool, error) {
	offset := t.floorOffset(key)

	reader := bufio.NewReader(io.NewSectionReader(t.data, offset, t.dataSize-offset))
	for {
		k, v, err := record.ReadFrame(reader)
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("sstable data %s: %w", t.meta.DataPath, err)
		}

		cmp := bytes.Compare(k, key)
		if cmp == 0 {
			return v, true, nil
		}
		if cmp > 0 {
			// Data is sorted; no later record can match.
			return nil, false, nil
		}
	}
}

// floorOffset returns the data-file offset of the greatest index entry whose
// key is <= key. When the target precedes every indexed key there is no such
// entry and the scan starts from offset 0.
func (t *SSTable) floorOffset(key []byte) int64 {
	i := sort.Search(len(t.index), func(i int) bool {
		return bytes.Compare(t.index[i].Key, key) > 0
	})
	if i == 0 {
		return 0
	}
	return t.index[i-1].Offset
}
