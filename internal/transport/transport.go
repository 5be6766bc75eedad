// Package transport implements the framed read/write halves used by the
// broker and its clients on top of a net.Conn: C2 of the core
// specification. It knows the 1-byte kind + 4-byte length header shape
// but defers to package wire for everything past that point.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/trt-pos/camelotd/internal/wire"
)

// Errors surfaced by ReadFrame/WriteFrame.
var (
	// ErrConnectionClosed indicates the peer closed the connection
	// cleanly (io.EOF at a frame boundary).
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrReadingError wraps any other I/O failure while reading a frame.
	ErrReadingError = errors.New("transport: read error")

	// ErrWritingError wraps any I/O failure while writing a frame.
	ErrWritingError = errors.New("transport: write error")

	// maxFrameLength bounds the length prefix to guard against a
	// corrupt or hostile peer claiming an unreasonable payload size.
	maxFrameLength uint32 = 16 * 1024 * 1024
)

// ErrFrameTooLarge indicates a peer's declared frame length exceeds
// maxFrameLength.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// ReadHalf reads complete frames from one direction of a split
// connection. It is not safe for concurrent use by multiple goroutines
// (the core uses exactly one read-loop goroutine per client).
type ReadHalf struct {
	conn net.Conn
	r    *bufio.Reader
}

// WriteHalf writes complete frames to one direction of a split
// connection. Callers needing concurrent writes must serialize through
// an external mutex (see internal/registry, which wraps every stored
// WriteHalf in one).
type WriteHalf struct {
	conn net.Conn
	w    *bufio.Writer
}

// Split wraps conn into an owned read half and an owned write half so a
// dispatcher delivering a callback to one client can write concurrently
// with that client's own read loop.
func Split(conn net.Conn) (*ReadHalf, *WriteHalf) {
	return &ReadHalf{conn: conn, r: bufio.NewReader(conn)},
		&WriteHalf{conn: conn, w: bufio.NewWriter(conn)}
}

// ReadFrame reads bytes from the underlying connection until one
// complete frame is present, then returns its kind and payload.
//
// The implementation reads the fixed 5-byte header first, then reads
// exactly length more bytes; bufio.Reader absorbs the "may take several
// underlying reads" cost so this never assumes a single net.Conn.Read
// call returns a whole frame.
func (r *ReadHalf) ReadFrame() (wire.Kind, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, ErrConnectionClosed
		}
		return 0, nil, wrapRead(err)
	}

	kind := wire.Kind(header[0])
	length := binary.BigEndian.Uint32(header[1:5])
	if length > maxFrameLength {
		return 0, nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		// The header has been consumed, so EOF here is mid-frame rather
		// than a clean close.
		return 0, nil, wrapRead(err)
	}

	return kind, payload, nil
}

func wrapRead(err error) error {
	return &readError{cause: err}
}

type readError struct{ cause error }

func (e *readError) Error() string { return "transport: read error: " + e.cause.Error() }
func (e *readError) Unwrap() error { return ErrReadingError }
func (e *readError) Cause() error  { return e.cause }

// WriteFrame writes the complete, already-encoded frame bytes (as
// produced by wire.Request.Encode / wire.Response.Encode) and flushes.
func (w *WriteHalf) WriteFrame(frame []byte) error {
	if _, err := w.w.Write(frame); err != nil {
		return wrapWrite(err)
	}
	if err := w.w.Flush(); err != nil {
		return wrapWrite(err)
	}
	return nil
}

func wrapWrite(err error) error {
	return &writeError{cause: err}
}

type writeError struct{ cause error }

func (e *writeError) Error() string { return "transport: write error: " + e.cause.Error() }
func (e *writeError) Unwrap() error { return ErrWritingError }
func (e *writeError) Cause() error  { return e.cause }

// Shutdown closes the write half of the underlying connection. If conn
// does not support half-close (net.Conn does not mandate CloseWrite),
// the whole connection is closed.
func (w *WriteHalf) Shutdown() error {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := w.conn.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return w.conn.Close()
}

// RemoteAddr returns the underlying connection's remote address, used
// only for log correlation.
func (w *WriteHalf) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }

// RemoteAddr returns the underlying connection's remote address, used
// only for log correlation.
func (r *ReadHalf) RemoteAddr() net.Addr { return r.conn.RemoteAddr() }
