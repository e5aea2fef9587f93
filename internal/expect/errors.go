package expect

import "errors"

var (
	// ErrTimeout is returned when the deadline elapses and no Timeout
	// sentinel was registered in the pattern set.
	ErrTimeout = errors.New("expect: timed out waiting for pattern")

	// ErrUnexpectedEOF is returned when the transport closes and no EOF
	// sentinel was registered in the pattern set.
	ErrUnexpectedEOF = errors.New("expect: transport closed before a pattern matched")

	// ErrTransport wraps read/write/spawn failures on the underlying
	// transport. These are fatal for the session; the engine never retries.
	ErrTransport = errors.New("expect: transport error")

	// ErrPattern is returned for malformed patterns, detected eagerly
	// before the expect loop starts.
	ErrPattern = errors.New("expect: invalid pattern")
)
