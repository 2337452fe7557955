// Package framing delivers whole message bodies over a stream-oriented
// transport using a 4-byte big-endian length prefix. It knows nothing about
// the shape of the bytes it carries; internal/protocol owns that.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrame is the hard ceiling on any single framed message, enforced
// before the body is allocated.
const MaxFrame = 16 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when the length prefix exceeds
// MaxFrame. The body is never read or allocated in this case.
var ErrFrameTooLarge = errors.New("framing: frame exceeds maximum size")

// flusher is implemented by buffered writers (bufio.Writer, tls.Conn does
// not need it but a wrapped buffered stream might); WriteFrame flushes the
// destination when it can.
type flusher interface {
	Flush() error
}

// ReadFrame reads exactly one length-prefixed frame from r: 4 bytes of
// big-endian length, followed by exactly that many bytes of body. A short
// read at either stage is an error. The length is checked against MaxFrame
// before the body buffer is allocated.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("framing: read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrame {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("framing: read frame body: %w", err)
	}
	return body, nil
}

// WriteFrame writes body as a single length-prefixed frame to w: a 4-byte
// big-endian length followed by body, then flushes w if it supports
// flushing. The caller is responsible for ensuring body fits a uint32;
// WriteFrame rejects it otherwise rather than silently truncating.
func WriteFrame(w io.Writer, body []byte) error {
	if uint64(len(body)) > uint64(^uint32(0)) {
		return fmt.Errorf("framing: frame body of %d bytes does not fit a 32-bit length", len(body))
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("framing: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("framing: write frame body: %w", err)
	}

	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("framing: flush: %w", err)
		}
	}
	return nil
}
