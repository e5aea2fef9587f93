// Package transport provides the duplex byte-stream endpoints the expect
// engine reads from and writes to: a child process on a pseudo-terminal,
// an already-open file descriptor, or a device file such as a serial line.
package transport

import (
	"io"
	"time"
)

// Transport is a pollable duplex endpoint. Reads are bounded by the
// deadline set via SetReadDeadline; a read past the deadline returns
// os.ErrDeadlineExceeded, and a read after the peer has gone away returns
// io.EOF. Close is idempotent.
type Transport interface {
	io.ReadWriteCloser
	// SetReadDeadline bounds the next Read. A zero time removes the bound.
	SetReadDeadline(t time.Time) error
}

// Process is implemented by transports tied to a child process. Liveness
// is detected lazily: IsAlive reaps the child if it has already exited.
type Process interface {
	Transport
	IsAlive() bool
	Wait() (int, error)
	ExitStatus() (int, bool)
	SignalStatus() (int, bool)
}
