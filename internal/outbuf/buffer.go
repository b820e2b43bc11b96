// Package outbuf implements the fixed-capacity output buffer that captures
// everything a script prints during one evaluation.
package outbuf

// DefaultCapacity is the capacity used when New is given a non-positive size.
const DefaultCapacity = 64 * 1024

// Buffer is an append-only byte accumulator with a fixed capacity. Its
// contents are always followed by a NUL terminator, so the logical length
// never exceeds Cap()-1. A write that would cross that bound is dropped in
// full and the buffer remembers that it truncated.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	buf       []byte
	n         int
	truncated bool
}

// New returns an empty buffer holding at most capacity-1 bytes of output.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{buf: make([]byte, capacity)}
}

// Write appends p if the resulting length stays strictly below capacity.
// Otherwise the write is discarded and Truncated starts reporting true.
func (b *Buffer) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	if b.n+len(p) >= len(b.buf) {
		b.truncated = true
		return
	}
	b.n += copy(b.buf[b.n:], p)
	b.buf[b.n] = 0
}

// WriteString is Write for strings.
func (b *Buffer) WriteString(s string) {
	if len(s) == 0 {
		return
	}
	if b.n+len(s) >= len(b.buf) {
		b.truncated = true
		return
	}
	b.n += copy(b.buf[b.n:], s)
	b.buf[b.n] = 0
}

// Clear empties the buffer and resets the truncation flag.
func (b *Buffer) Clear() {
	b.n = 0
	b.buf[0] = 0
	b.truncated = false
}

// Snapshot returns a copy of the current contents.
func (b *Buffer) Snapshot() string {
	return string(b.buf[:b.n])
}

// Bytes returns a view of the current contents that is valid until the
// next Write or Clear.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.n:b.n]
}

// CString returns the contents including the trailing NUL terminator.
func (b *Buffer) CString() []byte {
	return b.buf[: b.n+1 : b.n+1]
}

func (b *Buffer) Len() int { return b.n }

func (b *Buffer) Cap() int { return len(b.buf) }

// Truncated reports whether any write was dropped since the last Clear.
func (b *Buffer) Truncated() bool { return b.truncated }
