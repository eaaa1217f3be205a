package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrOversizeFrame is returned by ReadFrame when a peer declares a frame
// larger than maxBytes; the caller must drop the connection (spec §4.1).
var ErrOversizeFrame = errors.New("wire: oversize frame")

const frameHeaderLen = 4

// ReadFrame reads one length-prefixed frame: a big-endian uint32 byte
// count followed by that many bytes of payload. maxBytes bounds the
// accepted payload size; a declared size above it is ErrOversizeFrame
// without reading the body, so one hostile length cannot itself exhaust
// memory.
func ReadFrame(r io.Reader, maxBytes int) ([]byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if int64(size) > int64(maxBytes) {
		return nil, ErrOversizeFrame
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: short frame body: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame to w. It does not hold any
// lock; callers must serialize writes to a given w themselves (the
// connection manager's single writer goroutine does this).
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
