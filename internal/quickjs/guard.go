//go:build !v8

package quickjs

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// maxStackFrames bounds the Go call depth of one evaluation. QuickJS's own
// stack check is compiled out of the modernc build, so deep JS recursion
// would otherwise run into the Go runtime's fatal stack limit. One JS call
// level costs about one Go frame.
const maxStackFrames = 20000

// stackOverflowText is the exception reported when the guard fires.
const stackOverflowText = "InternalError: stack overflow"

// guard is the state behind the engine's interrupt handler. QuickJS polls
// the handler on function entry and loop back-edges; a non-zero return
// throws an uncatchable error that unwinds the whole evaluation.
type guard struct {
	handle    uintptr
	interrupt atomic.Bool
	overflow  atomic.Bool
}

var (
	guardsMu   sync.Mutex
	guards     = map[uintptr]*guard{}
	nextHandle uintptr
)

// installGuard replaces the binding's interrupt handler on rt.
func installGuard(tls *libc.TLS, rt uintptr) *guard {
	guardsMu.Lock()
	nextHandle++
	g := &guard{handle: nextHandle}
	guards[g.handle] = g
	guardsMu.Unlock()

	lib.XJS_SetInterruptHandler(tls, rt, funcPtr(guardHandler), g.handle)
	return g
}

func (g *guard) release() {
	guardsMu.Lock()
	delete(guards, g.handle)
	guardsMu.Unlock()
}

// reset clears both flags before an evaluation.
func (g *guard) reset() {
	g.interrupt.Store(false)
	g.overflow.Store(false)
}

func guardHandler(_ *libc.TLS, _, opaque uintptr) int32 {
	guardsMu.Lock()
	g := guards[opaque]
	guardsMu.Unlock()
	if g == nil {
		return 0
	}
	if g.interrupt.Load() {
		return 1
	}
	if deeperThan(maxStackFrames) {
		g.overflow.Store(true)
		return 1
	}
	return 0
}

// deeperThan reports whether the calling goroutine has more than n frames.
func deeperThan(n int) bool {
	var pc [1]uintptr
	return runtime.Callers(n, pc[:]) > 0
}

// funcPtr converts a Go function into the callback pointer libquickjs
// expects.
func funcPtr(f any) uintptr {
	type iface [2]uintptr
	return (*iface)(unsafe.Pointer(&f))[1]
}
