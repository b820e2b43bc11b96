// Package render turns an evaluation Outcome plus the output captured during
// that evaluation into the single string handed back to the host.
package render

import (
	"unicode/utf8"

	"github.com/cryguy/mqjs/internal/core"
)

// DefaultCapacity is the result buffer size used when New is given a
// non-positive capacity.
const DefaultCapacity = 64 * 1024

const (
	errorPrefix        = "Error: "
	unknownException   = "Unknown exception"
	exceptionOccurred  = "Exception occurred"
	unrenderableResult = "[Object]"
)

// Text applies the rendering precedence to o and output. Printed output
// always precedes the result and nothing is inserted between them. Text is
// total: every outcome yields a string.
func Text(o core.Outcome, output string) string {
	switch o.Kind {
	case core.KindException:
		return errorPrefix + o.Text
	case core.KindExceptionUnrenderable:
		return errorPrefix + unknownException
	case core.KindExceptionAbsent:
		return errorPrefix + exceptionOccurred
	case core.KindUndefined:
		if output != "" {
			return output
		}
		return "undefined"
	case core.KindNull:
		return output + "null"
	case core.KindValue:
		return output + o.Text
	default:
		if output != "" {
			return output
		}
		return unrenderableResult
	}
}

// Renderer owns a fixed-capacity result buffer. Rendered text longer than
// the capacity minus one byte is cut short, the same way a bounded
// snprintf would, except that the cut never splits a UTF-8 sequence.
//
// Renderer is not safe for concurrent use.
type Renderer struct {
	buf       []byte
	truncated bool
}

// New returns a Renderer with a result buffer of capacity bytes.
func New(capacity int) *Renderer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Renderer{buf: make([]byte, capacity)}
}

// Render formats o and output into the result buffer and returns a copy.
func (r *Renderer) Render(o core.Outcome, output string) string {
	s := Text(o, output)
	limit := len(r.buf) - 1
	r.truncated = len(s) > limit
	if r.truncated {
		for limit > 0 && !utf8.RuneStart(s[limit]) {
			limit--
		}
		s = s[:limit]
	}
	n := copy(r.buf, s)
	r.buf[n] = 0
	return string(r.buf[:n])
}

// Truncated reports whether the most recent Render had to cut its text.
func (r *Renderer) Truncated() bool { return r.truncated }

func (r *Renderer) Cap() int { return len(r.buf) }
