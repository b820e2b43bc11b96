//go:build !v8

// Package quickjs is the default script engine backend, built on the
// pure-Go modernc.org/quickjs translation of QuickJS.
package quickjs

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/webapi"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// DefaultMemoryBudget applies when the config leaves MemoryBudget at zero.
const DefaultMemoryBudget = 4 << 20

// minMemoryBudget is the smallest heap QuickJS can build its intrinsics in.
const minMemoryBudget = 128 << 10

// inputFilename is the script name QuickJS reports in stack traces.
const inputFilename = "<input>"

// Engine is one QuickJS context with the shell's globals installed.
type Engine struct {
	vm     *quickjs.VM
	rt     *qjsRuntime
	guard  *guard
	budget int
	dead   atomic.Bool
	closed bool
}

var _ core.ScriptEngine = (*Engine)(nil)

// New creates a QuickJS context limited to cfg.MemoryBudget bytes whose
// console writes to sink.
func New(cfg core.EngineConfig, sink core.OutputSink) (*Engine, error) {
	budget := cfg.MemoryBudget
	if budget == 0 {
		budget = DefaultMemoryBudget
	}
	if budget < minMemoryBudget {
		return nil, fmt.Errorf("memory budget %d is below the %d byte minimum", budget, minMemoryBudget)
	}

	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}

	rt, err := newRuntime(vm)
	if err != nil {
		vm.Close()
		return nil, fmt.Errorf("accessing QuickJS internals: %w", err)
	}

	if err := webapi.Apply(rt, sink, webapi.Setups(cfg)); err != nil {
		vm.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}
	g := installGuard(rt.tls, rt.rt)

	// The limit goes on last so the setup scripts never compete with user
	// code for the budget.
	vm.SetMemoryLimit(uintptr(budget))

	return &Engine{vm: vm, rt: rt, guard: g, budget: budget}, nil
}

// Version reports the embedded QuickJS release.
func Version() string {
	return "QuickJS " + quickjs.Version()
}

// Evaluate runs source as global code. Cancelling ctx interrupts the
// script. An interrupted engine, or one whose script recursed past
// maxStackFrames, is no longer alive.
func (e *Engine) Evaluate(ctx context.Context, source string, mode core.EvalMode) (out core.Outcome) {
	if !e.Alive() {
		return core.Exception("engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return core.Interrupted(ctx)
	}

	e.guard.reset()
	stop := context.AfterFunc(ctx, func() {
		e.guard.interrupt.Store(true)
	})

	defer func() {
		stop()
		if r := recover(); r != nil {
			e.dead.Store(true)
			out = core.Exception(fmt.Sprintf("engine panic: %v", r))
		}
		switch {
		case e.guard.interrupt.Load():
			e.dead.Store(true)
			out = core.Interrupted(ctx)
		case e.guard.overflow.Load():
			e.dead.Store(true)
			out = core.Exception(stackOverflowText)
		}
	}()

	out = e.eval(source, mode)
	if !e.guard.interrupt.Load() && !e.guard.overflow.Load() {
		e.rt.RunMicrotasks()
	}
	return out
}

// eval compiles and runs source through the C API so the result and the
// pending exception can be inspected before the binding converts them.
func (e *Engine) eval(source string, mode core.EvalMode) core.Outcome {
	tls, ctx := e.rt.tls, e.rt.ctx

	ps, err := libc.CString(source)
	if err != nil {
		return core.Exception(fmt.Sprintf("allocating source: %v", err))
	}
	defer libc.Xfree(tls, ps)

	fn, err := libc.CString(inputFilename)
	if err != nil {
		return core.Exception(fmt.Sprintf("allocating filename: %v", err))
	}
	defer libc.Xfree(tls, fn)

	flags := int32(lib.MJS_EVAL_TYPE_GLOBAL)
	if mode == core.ModeStrict {
		flags |= int32(lib.MJS_EVAL_FLAG_STRICT)
	}

	v := lib.XJS_Eval(tls, ctx, ps, lib.Tsize_t(len(source)), fn, flags)
	defer lib.XFreeValue(tls, ctx, v)

	switch valueTag(v) {
	case int32(lib.EJS_TAG_EXCEPTION):
		return e.pendingException()
	case int32(lib.EJS_TAG_UNDEFINED):
		return core.Undefined()
	case int32(lib.EJS_TAG_NULL):
		return core.Null()
	}

	s, ok := e.toString(v)
	if !ok {
		return core.Unrenderable()
	}
	return core.Value(s)
}

// pendingException takes the context's pending exception and renders it.
// A thrown undefined counts as no exception object at all.
func (e *Engine) pendingException() core.Outcome {
	tls, ctx := e.rt.tls, e.rt.ctx

	if lib.XJS_HasException(tls, ctx) == 0 {
		return core.ExceptionAbsent()
	}
	exc := lib.XJS_GetException(tls, ctx)
	defer lib.XFreeValue(tls, ctx, exc)
	if valueTag(exc) == int32(lib.EJS_TAG_UNDEFINED) {
		return core.ExceptionAbsent()
	}

	s, ok := e.toString(exc)
	if !ok {
		return core.ExceptionUnrenderable()
	}
	return core.Exception(s)
}

// toString converts v with the engine's String() semantics. A conversion
// that throws leaves a new exception pending; it is discarded.
func (e *Engine) toString(v lib.TJSValue) (string, bool) {
	tls, ctx := e.rt.tls, e.rt.ctx

	plen := tls.Alloc(8)
	defer tls.Free(8)

	p := lib.XJS_ToCStringLen2(tls, ctx, plen, v, 0)
	if p == 0 {
		lib.XFreeValue(tls, ctx, lib.XJS_GetException(tls, ctx))
		return "", false
	}
	defer lib.XJS_FreeCString(tls, ctx, p)

	n := *(*lib.Tsize_t)(unsafe.Pointer(plen))
	return string(libc.GoBytes(p, int(n))), true
}

// Alive reports whether the engine can run another evaluation.
func (e *Engine) Alive() bool {
	return !e.closed && !e.dead.Load()
}

// MemoryBudget returns the heap limit the engine was built with.
func (e *Engine) MemoryBudget() int {
	return e.budget
}

// Close frees the QuickJS context and runtime.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.guard.release()
	return e.vm.Close()
}
