// Package transport implements the newline-framed JSON wire format shared
// by the daemon endpoint and its clients: one UTF-8 JSON object per line,
// request and reply alike, with a hard maximum frame size so an oversized
// frame fails fast without reading the remainder.
package transport

import (
	"bufio"
	"fmt"
	"io"
)

// MaxFrameSize is the hard maximum size, in bytes, of a single framed
// request or reply.
const MaxFrameSize = 64 * 1024

// ErrFrameTooLarge is returned by ReadFrame when a line exceeds
// MaxFrameSize before a newline is seen.
type ErrFrameTooLarge struct {
	Limit int
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame exceeds maximum size of %d bytes", e.Limit)
}

// ReadFrame reads one newline-terminated frame from r, enforcing
// MaxFrameSize. It never reads past the point where the size limit is
// exceeded: bufio.Reader.ReadSlice returns bufio.ErrBufferFull once its
// internal buffer (sized to MaxFrameSize) fills without a newline, which
// this function maps to ErrFrameTooLarge without draining the rest of the
// oversized input.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, &ErrFrameTooLarge{Limit: MaxFrameSize}
		}
		if err == io.EOF && len(line) > 0 {
			// Connection closed mid-frame with no trailing newline.
			return nil, fmt.Errorf("connection closed before frame terminator: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}

	out := make([]byte, len(line)-1) // trim trailing '\n'
	copy(out, line[:len(line)-1])
	return out, nil
}

// NewFrameReader returns a bufio.Reader sized so ReadFrame enforces
// MaxFrameSize.
func NewFrameReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, MaxFrameSize)
}

// WriteFrame writes data followed by a newline terminator.
func WriteFrame(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("write frame terminator: %w", err)
	}
	return nil
}
