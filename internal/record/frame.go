package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameLen bounds a single key or value length read from disk, so a
// corrupted length prefix fails fast instead of allocating gigabytes.
const maxFrameLen = 1 << 30

// WriteFrame writes one data-file record to w:
// [4 bytes big-endian key length][key][4 bytes big-endian value length][value],
// contiguous with no padding. It returns the number of bytes written.
func WriteFrame(w io.Writer, key, value []byte) (int64, error) {
	buf := make([]byte, 4+len(key)+4+len(value))
	binary.BigEndian.PutUint32(buf, uint32(len(key)))
	copy(buf[4:], key)
	binary.BigEndian.PutUint32(buf[4+len(key):], uint32(len(value)))
	copy(buf[8+len(key):], value)

	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write frame: %w", err)
	}
	return int64(n), nil
}

// ReadFrame reads the next record from r. A clean end of input at a frame
// boundary returns io.EOF; a frame cut off partway through wraps ErrCorrupt.
func ReadFrame(r *bufio.Reader) (key, value []byte, err error) {
	key, err = readChunk(r, true)
	if err != nil {
		return nil, nil, err
	}
	value, err = readChunk(r, false)
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// readChunk reads one [u32 length][bytes] section. EOF is only clean before
// the key length of a new frame.
func readChunk(r *bufio.Reader, eofOK bool) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF && eofOK {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated frame: %v", ErrCorrupt, err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("%w: frame length %d out of range", ErrCorrupt, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: truncated frame: %v", ErrCorrupt, err)
	}
	return buf, nil
}
