package transport

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

// TestFilePipeReadWrite attaches the read end of a pipe and checks data,
// deadline expiry, and EOF on writer close.
func TestFilePipeReadWrite(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	tr := Attach(r)
	defer tr.Close()

	if _, err := w.WriteString("data"); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 16)
	if err := tr.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, err := tr.Read(buf)
	if err != nil || string(buf[:n]) != "data" {
		t.Fatalf("Read = (%q, %v)", buf[:n], err)
	}

	// Nothing more to read: the deadline must fire.
	if err := tr.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if _, err := tr.Read(buf); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	w.Close()
	if err := tr.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if _, err := tr.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after writer close, got %v", err)
	}
}

func TestFileDoubleClose(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer w.Close()

	tr := Attach(r)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// TestAttachPathFifo opens a fifo through AttachPath and round-trips a
// message, standing in for a serial device node.
func TestAttachPathFifo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port")
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}

	tr, err := AttachPath(path)
	if err != nil {
		t.Fatalf("AttachPath: %v", err)
	}
	defer tr.Close()

	if tr.Name() != path {
		t.Errorf("Name() = %q, want %q", tr.Name(), path)
	}

	// O_RDWR on a fifo gives both ends, so the write loops back.
	if _, err := tr.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	if err := tr.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, err := tr.Read(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read = (%q, %v)", buf[:n], err)
	}
}

func TestAttachPathMissing(t *testing.T) {
	if _, err := AttachPath(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing path")
	}
}
