// Package frame implements the length-prefixed framing used by the worker channels.
//
// A frame is a uvarint byte count followed by that many payload bytes. A buffer
// is a flat concatenation of frames with no trailing delimiter, so independent
// appends can later be split back into their original payloads.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFraming is returned when a buffer does not split into whole frames.
var ErrFraming = errors.New("framing error")

// Encode returns payload wrapped in a single frame.
func Encode(payload []byte) []byte {
	return Append(make([]byte, 0, binary.MaxVarintLen64+len(payload)), payload)
}

// Append encodes payload as a frame at the end of buf and returns the extended buffer.
func Append(buf, payload []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// Drain splits buf into its payloads, in the order they were appended.
// Payloads alias buf. On ErrFraming no payloads are returned.
func Drain(buf []byte) ([][]byte, error) {
	var payloads [][]byte
	for off := 0; off < len(buf); {
		n, size := binary.Uvarint(buf[off:])
		if size <= 0 {
			return nil, fmt.Errorf("%w: bad length prefix at offset %d", ErrFraming, off)
		}
		off += size
		if n > uint64(len(buf)-off) {
			return nil, fmt.Errorf("%w: frame at offset %d claims %d bytes, %d remain", ErrFraming, off-size, n, len(buf)-off)
		}
		end := off + int(n)
		payloads = append(payloads, buf[off:end:end])
		off = end
	}
	return payloads, nil
}
