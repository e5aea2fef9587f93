package expect

// buffer accumulates everything read from the transport that has not yet
// been consumed by a successful match. It grows monotonically during one
// expect call; a match consumes the prefix up to and including the matched
// span and keeps the tail for the next call.
type buffer struct {
	data []byte
}

func (b *buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

func (b *buffer) String() string {
	return string(b.data)
}

func (b *buffer) Len() int {
	return len(b.data)
}

// ConsumeTo drops everything up to (and excluding) offset end, keeping the
// unmatched tail in place.
func (b *buffer) ConsumeTo(end int) {
	if end >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	// Copy down rather than re-slice so consumed bytes don't pin memory.
	n := copy(b.data, b.data[end:])
	b.data = b.data[:n]
}

func (b *buffer) Reset() {
	b.data = b.data[:0]
}
