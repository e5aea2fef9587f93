package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// File adapts an already-open descriptor or device node to the Transport
// interface. It covers the "attach" cases: inherited pipes, pre-opened
// sockets wrapped in files, and serial device nodes such as /dev/ttyUSB0.
// Deadline support requires the descriptor to be pollable; regular files
// are not.
type File struct {
	f *os.File

	mu     sync.Mutex
	closed bool
}

// Attach wraps an open file. Ownership transfers to the returned File;
// the caller must not close f separately.
func Attach(f *os.File) *File {
	return &File{f: f}
}

// AttachFd wraps a raw descriptor. The name is only used in diagnostics.
func AttachFd(fd uintptr, name string) *File {
	return &File{f: os.NewFile(fd, name)}
}

// AttachPath opens a device node or fifo read-write and wraps it. This is
// the entry point for serial lines: the port must already be configured
// (baud rate, framing) by the caller or the system.
func AttachPath(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %q: %w", path, err)
	}
	return &File{f: f}, nil
}

// Read reads from the descriptor. A read racing with Close reports io.EOF
// so that an expect call blocked on this transport unwinds as if the peer
// had gone away.
func (t *File) Read(b []byte) (int, error) {
	n, err := t.f.Read(b)
	if err != nil && errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	return n, err
}

func (t *File) Write(b []byte) (int, error) {
	return t.f.Write(b)
}

func (t *File) SetReadDeadline(d time.Time) error {
	return t.f.SetReadDeadline(d)
}

// Name returns the underlying file's name.
func (t *File) Name() string {
	return t.f.Name()
}

// Close releases the descriptor. Closing twice is a no-op.
func (t *File) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.f.Close()
}
