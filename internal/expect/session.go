// Package expect implements the expect engine: it feeds input to a child
// process (or any pollable duplex transport), reads its output
// incrementally, and matches the accumulated output against literal,
// regexp, and sentinel patterns under a deadline.
package expect

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/user/expectctl/internal/term"
	"github.com/user/expectctl/internal/transport"
)

const (
	// DefaultTimeout selects the session's configured timeout.
	DefaultTimeout time.Duration = -1
	// NoTimeout makes an expect call block until a match or EOF. The call
	// still wakes at the poll interval, so closing the transport from
	// elsewhere unblocks it.
	NoTimeout time.Duration = math.MaxInt64
)

const (
	defaultSessionTimeout = 30 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
	defaultReadChunk      = 2000
)

// Observer receives a copy of session traffic and match results, e.g. for
// transcript recording. Implementations must not block.
type Observer interface {
	Sent(data []byte)
	Received(data []byte)
	Matched(index int, before, after string)
}

// Options configure one Session. The zero value picks the package
// defaults; options are fixed at construction so sessions stay independent
// and testable in isolation.
type Options struct {
	// Timeout is the deadline applied when an expect call passes
	// DefaultTimeout. Defaults to 30 seconds.
	Timeout time.Duration
	// PollInterval bounds how long a single read attempt may block, which
	// is also the latency for noticing an external transport close.
	PollInterval time.Duration
	// ReadChunk is the maximum number of bytes pulled from the transport
	// per read attempt.
	ReadChunk int
	// LineSep is appended by SendLine. Defaults to "\n".
	LineSep string
	// StripControl removes ANSI escape sequences and control bytes from
	// the Before/After views of a match. Matching itself always runs on
	// the raw bytes.
	StripControl bool
	// Observer, when set, is notified of all traffic and matches.
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultSessionTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = defaultReadChunk
	}
	if o.LineSep == "" {
		o.LineSep = "\n"
	}
	return o
}

// Session owns one transport and the buffer of output read from it. All
// operations are sequential: one Expect or Send at a time; concurrent
// calls on the same Session are not supported.
type Session struct {
	t    transport.Transport
	opts Options
	buf  buffer

	before    string
	after     string
	groups    []string
	spanStart int
	spanEnd   int
	hasSpan   bool

	eof     bool // transport reported terminal closure; sticky
	closed  bool
	created time.Time
}

// NewSession wraps an established transport.
func NewSession(t transport.Transport, opts Options) *Session {
	return &Session{t: t, opts: opts.withDefaults(), created: time.Now()}
}

// Spawn starts a child process on a new PTY and returns a session bound
// to it.
func Spawn(argv []string, cfg transport.SpawnConfig, opts Options) (*Session, error) {
	p, err := transport.Spawn(argv, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return NewSession(p, opts), nil
}

// Attach wraps an already-open file (inherited descriptor, fifo, serial
// device node) in a session.
func Attach(f *os.File, opts Options) *Session {
	return NewSession(transport.Attach(f), opts)
}

// Expect compiles the items (strings become regular expressions; Pattern
// values pass through) and seeks through the stream until one matches.
// It returns the index of the matching pattern within the set.
func (s *Session) Expect(timeout time.Duration, items ...any) (int, error) {
	patterns, err := CompilePatterns(items...)
	if err != nil {
		return -1, err
	}
	return s.ExpectPatterns(patterns, timeout)
}

// ExpectExact is Expect with plain substring matching: strings are taken
// literally, with no regexp metacharacter interpretation.
func (s *Session) ExpectExact(timeout time.Duration, items ...any) (int, error) {
	patterns, err := ExactPatterns(items...)
	if err != nil {
		return -1, err
	}
	return s.ExpectPatterns(patterns, timeout)
}

// ExpectPatterns runs the expect loop over an already-normalized pattern
// set. Useful when the same set is matched in a loop.
func (s *Session) ExpectPatterns(patterns []Pattern, timeout time.Duration) (int, error) {
	if timeout == DefaultTimeout {
		timeout = s.opts.Timeout
	}
	var deadline time.Time
	if timeout < NoTimeout {
		deadline = time.Now().Add(timeout)
	}

	chunk := make([]byte, s.opts.ReadChunk)
	timedOut := false
	for {
		// Scan before reading: a previous call may have left buffer
		// content that already satisfies a pattern.
		if res, ok := scan(s.buf.String(), patterns); ok {
			s.commit(res)
			return res.index, nil
		}
		if s.eof {
			return s.finishEOF(patterns)
		}
		if timedOut {
			return s.finishTimeout(patterns)
		}

		now := time.Now()
		limit := now.Add(s.opts.PollInterval)
		if !deadline.IsZero() {
			if !now.Before(deadline) {
				// Deadline reached. One zero-wait poll picks up bytes that
				// are already available before the call is declared timed
				// out.
				timedOut = true
				limit = now
			} else if deadline.Before(limit) {
				limit = deadline
			}
		}
		if err := s.t.SetReadDeadline(limit); err != nil {
			return -1, s.failTransport(fmt.Errorf("set read deadline: %w", err))
		}

		n, err := s.t.Read(chunk)
		if n > 0 {
			s.buf.Append(chunk[:n])
			if s.opts.Observer != nil {
				s.opts.Observer.Received(chunk[:n])
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			// Poll tick; deadline accounting happens at the top.
		case errors.Is(err, io.EOF):
			s.eof = true
		default:
			return -1, s.failTransport(fmt.Errorf("read: %w", err))
		}
	}
}

func (s *Session) commit(res matchResult) {
	content := s.buf.String()
	s.before = content[:res.start]
	s.after = content[res.start:res.end]
	if s.opts.StripControl {
		s.before = term.Strip(s.before)
		s.after = term.Strip(s.after)
	}
	s.groups = res.groups
	s.spanStart, s.spanEnd, s.hasSpan = res.start, res.end, true
	s.buf.ConsumeTo(res.end)
	if s.opts.Observer != nil {
		s.opts.Observer.Matched(res.index, s.before, s.after)
	}
}

func (s *Session) finishEOF(patterns []Pattern) (int, error) {
	s.before = s.buf.String()
	s.groups = nil
	s.hasSpan = false
	for i, p := range patterns {
		if p.kind == KindEOF {
			s.after = eofLabel
			// The stream ended: everything read counts as consumed.
			s.buf.Reset()
			if s.opts.Observer != nil {
				s.opts.Observer.Matched(i, s.before, s.after)
			}
			return i, nil
		}
	}
	s.after = ""
	return -1, ErrUnexpectedEOF
}

func (s *Session) finishTimeout(patterns []Pattern) (int, error) {
	s.before = s.buf.String()
	s.groups = nil
	s.hasSpan = false
	for i, p := range patterns {
		if p.kind == KindTimeout {
			s.after = timeoutLabel
			// Unlike EOF, the buffer survives: the data may still match
			// on a later call.
			if s.opts.Observer != nil {
				s.opts.Observer.Matched(i, s.before, s.after)
			}
			return i, nil
		}
	}
	s.after = ""
	return -1, ErrTimeout
}

func (s *Session) failTransport(err error) error {
	s.before = s.buf.String()
	s.after = ""
	s.groups = nil
	s.hasSpan = false
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// Send writes raw bytes to the transport. No line terminator is appended.
func (s *Session) Send(data string) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("%w: session closed", ErrTransport)
	}
	n, err := s.t.Write([]byte(data))
	if err != nil {
		return n, fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	if s.opts.Observer != nil {
		s.opts.Observer.Sent([]byte(data))
	}
	return n, nil
}

// SendLine writes data followed by the configured line separator.
func (s *Session) SendLine(data string) (int, error) {
	return s.Send(data + s.opts.LineSep)
}

// SendControl sends the control character for c, e.g. 'c' for Ctrl-C.
// Letters a-z map to 0x01-0x1a; the usual punctuation aliases are
// supported ('[' for ESC, '?' for DEL, ...).
func (s *Session) SendControl(c byte) (int, error) {
	b, ok := controlByte(c)
	if !ok {
		return 0, fmt.Errorf("%w: no control mapping for %q", ErrPattern, string(c))
	}
	return s.Send(string(b))
}

// SendEOF sends the terminal EOF character (Ctrl-D).
func (s *Session) SendEOF() (int, error) {
	return s.Send("\x04")
}

// SendIntr sends the terminal interrupt character (Ctrl-C).
func (s *Session) SendIntr() (int, error) {
	return s.Send("\x03")
}

func controlByte(c byte) (byte, bool) {
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 1, true
	}
	switch c {
	case '@', '`':
		return 0, true
	case '[', '{':
		return 27, true
	case '\\', '|':
		return 28, true
	case ']', '}':
		return 29, true
	case '^', '~':
		return 30, true
	case '_':
		return 31, true
	case '?':
		return 127, true
	}
	return 0, false
}

// SetObserver installs or replaces the traffic observer. Like the rest of
// the Session API it must not race with an in-progress Expect call.
func (s *Session) SetObserver(o Observer) {
	s.opts.Observer = o
}

// Before returns the text preceding the last match.
func (s *Session) Before() string { return s.before }

// After returns the last matched text, or the sentinel label when an EOF
// or Timeout sentinel fired.
func (s *Session) After() string { return s.after }

// MatchGroups returns the submatches of the last regexp match, without
// the full match itself.
func (s *Session) MatchGroups() []string {
	if len(s.groups) <= 1 {
		return nil
	}
	return s.groups[1:]
}

// MatchSpan returns the span of the last match within the buffer content
// as it stood when the match fired. ok is false after sentinel matches
// and failed calls.
func (s *Session) MatchSpan() (start, end int, ok bool) {
	return s.spanStart, s.spanEnd, s.hasSpan
}

// Buffer returns the unconsumed tail of output read so far.
func (s *Session) Buffer() string { return s.buf.String() }

// EOF reports whether the transport has signaled terminal closure. The
// condition is sticky.
func (s *Session) EOF() bool { return s.eof }

// IsAlive reports whether the underlying process is still running. For
// non-process transports it reports whether the stream is still open.
func (s *Session) IsAlive() bool {
	if s.closed {
		return false
	}
	if p, ok := s.t.(transport.Process); ok {
		return p.IsAlive()
	}
	return !s.eof
}

// Wait blocks until the child process exits and returns its exit status.
// Waiting on a non-process transport is an error.
func (s *Session) Wait() (int, error) {
	p, ok := s.t.(transport.Process)
	if !ok {
		return 0, fmt.Errorf("%w: transport has no process to wait for", ErrTransport)
	}
	status, err := p.Wait()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return status, nil
}

// ExitStatus returns the child's exit status once collected. It never
// blocks.
func (s *Session) ExitStatus() (int, bool) {
	if p, ok := s.t.(transport.Process); ok {
		return p.ExitStatus()
	}
	return 0, false
}

// SignalStatus returns the number of the signal that terminated the child,
// if any. It never blocks.
func (s *Session) SignalStatus() (int, bool) {
	if p, ok := s.t.(transport.Process); ok {
		return p.SignalStatus()
	}
	return 0, false
}

// SetEcho toggles terminal echo on a process session. Child output
// produced before the switch is unaffected and may still be buffered.
func (s *Session) SetEcho(on bool) error {
	p, ok := s.t.(*transport.Proc)
	if !ok {
		return fmt.Errorf("%w: echo control needs a PTY transport", ErrTransport)
	}
	return p.SetEcho(on)
}

// GetEcho reports the terminal echo mode of a process session.
func (s *Session) GetEcho() (bool, error) {
	p, ok := s.t.(*transport.Proc)
	if !ok {
		return false, fmt.Errorf("%w: echo control needs a PTY transport", ErrTransport)
	}
	return p.GetEcho()
}

// WaitNoEcho polls until the child turns terminal echo off (the usual
// password-prompt signal) or the timeout elapses. It reports whether echo
// is off.
func (s *Session) WaitNoEcho(timeout time.Duration) (bool, error) {
	if timeout == DefaultTimeout {
		timeout = s.opts.Timeout
	}
	deadline := time.Now().Add(timeout)
	for {
		on, err := s.GetEcho()
		if err != nil {
			return false, err
		}
		if !on {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(s.opts.PollInterval)
	}
}

// Close releases the transport. For process sessions this terminates the
// child. Closing an already-closed session is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.t.Close()
}
