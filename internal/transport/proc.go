package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const closeGrace = 500 * time.Millisecond

// SpawnConfig controls how a child process is started.
type SpawnConfig struct {
	Dir  string
	Env  []string
	Cols uint16
	Rows uint16
	// NoEcho turns terminal echo off immediately after spawn, before the
	// child has a chance to write anything.
	NoEcho bool
}

// Proc is a child process running inside a new PTY. Reads and writes go
// through the PTY master; termination of the child is detected lazily via
// a non-blocking wait, never through signal handlers or goroutines.
type Proc struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	closed bool
	reaped bool
	status unix.WaitStatus
}

// Spawn starts argv[0] with the remaining arguments inside a new PTY.
// The PTY defaults to 80x24 unless the config says otherwise.
func Spawn(argv []string, cfg SpawnConfig) (*Proc, error) {
	if len(argv) == 0 {
		return nil, errors.New("transport: argv must not be empty")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = cfg.Env
	}

	cols, rows := cfg.Cols, cfg.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("transport: spawn %q: %w", argv[0], err)
	}

	p := &Proc{cmd: cmd, ptmx: ptmx}
	if cfg.NoEcho {
		if err := p.SetEcho(false); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Read reads from the PTY master. Once the child has exited and the slave
// side is gone, Linux reports EIO; that is the terminal condition for this
// transport, so it is mapped to io.EOF. Deadline errors pass through.
func (p *Proc) Read(b []byte) (int, error) {
	n, err := p.ptmx.Read(b)
	if err != nil && (errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)) {
		return n, io.EOF
	}
	return n, err
}

// Write sends data to the child's stdin.
func (p *Proc) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

// SetReadDeadline bounds the next Read on the PTY master.
func (p *Proc) SetReadDeadline(t time.Time) error {
	return p.ptmx.SetReadDeadline(t)
}

// Pid returns the child process id.
func (p *Proc) Pid() int {
	return p.cmd.Process.Pid
}

// Signal delivers sig to the child process.
func (p *Proc) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Resize changes the PTY window size, delivering SIGWINCH to the child.
func (p *Proc) Resize(cols, rows uint16) error {
	return creackpty.Setsize(p.ptmx, &creackpty.Winsize{Cols: cols, Rows: rows})
}

// SetEcho toggles the ECHO flag on the terminal line discipline.
func (p *Proc) SetEcho(on bool) error {
	fd := int(p.ptmx.Fd())
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("transport: get termios: %w", err)
	}
	if on {
		tio.Lflag |= unix.ECHO
	} else {
		tio.Lflag &^= unix.ECHO
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return fmt.Errorf("transport: set termios: %w", err)
	}
	return nil
}

// GetEcho reports whether terminal echo is currently enabled.
func (p *Proc) GetEcho() (bool, error) {
	tio, err := unix.IoctlGetTermios(int(p.ptmx.Fd()), unix.TCGETS)
	if err != nil {
		return false, fmt.Errorf("transport: get termios: %w", err)
	}
	return tio.Lflag&unix.ECHO != 0, nil
}

// IsAlive reports whether the child is still running. If the child has
// exited it is reaped here and its exit status recorded.
func (p *Proc) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaped {
		return false
	}
	return !p.reapLocked(unix.WNOHANG)
}

// Wait blocks until the child exits and returns its exit status. A child
// killed by a signal reports 128 plus the signal number, shell-style.
// Calling Wait again returns the recorded status without blocking.
func (p *Proc) Wait() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reaped && !p.reapLocked(0) {
		return 0, fmt.Errorf("transport: wait on pid %d failed", p.cmd.Process.Pid)
	}
	return p.exitCodeLocked(), nil
}

// ExitStatus returns the child's exit status and whether it has been
// collected yet. It never blocks.
func (p *Proc) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reaped {
		return 0, false
	}
	return p.exitCodeLocked(), true
}

// SignalStatus returns the number of the signal that terminated the child,
// once collected. ok is false while the child runs or when it exited
// normally.
func (p *Proc) SignalStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reaped || !p.status.Signaled() {
		return 0, false
	}
	return int(p.status.Signal()), true
}

func (p *Proc) exitCodeLocked() int {
	if p.status.Signaled() {
		return 128 + int(p.status.Signal())
	}
	return p.status.ExitStatus()
}

// reapLocked performs one wait4 call and records the status when the child
// has been collected. ECHILD means someone else reaped it already; the
// child is dead either way.
func (p *Proc) reapLocked(options int) bool {
	var ws unix.WaitStatus
	pid, err := unix.Wait4(p.cmd.Process.Pid, &ws, options, nil)
	if errors.Is(err, unix.ECHILD) {
		p.reaped = true
		return true
	}
	if err != nil || pid == 0 {
		return false
	}
	p.reaped = true
	p.status = ws
	return true
}

// Close terminates the child and releases the PTY. The child first gets
// SIGTERM and a short grace period; if it is still running afterwards it
// gets SIGKILL. Closing an already-closed Proc is a no-op.
func (p *Proc) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}
	err := p.ptmx.Close()

	deadline := time.Now().Add(closeGrace)
	for p.IsAlive() {
		if time.Now().After(deadline) {
			_ = p.cmd.Process.Signal(syscall.SIGKILL)
			p.mu.Lock()
			if !p.reaped {
				p.reapLocked(0)
			}
			p.mu.Unlock()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return err
}
