//go:build v8

// Package v8engine is the optional V8 script engine backend, selected with
// the v8 build tag.
package v8engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/webapi"
	v8 "github.com/tommie/v8go"
)

// DefaultMemoryBudget applies when the config leaves MemoryBudget at zero.
const DefaultMemoryBudget = 64 << 20

// minHeapConstraint is the smallest heap V8 accepts resource constraints
// for. Smaller budgets run with the isolate defaults.
const minHeapConstraint = 16 << 20

// strictPrologue makes the rest of the script strict. The void statement
// keeps the directive string out of the completion value, and both sit on
// the first line so reported line numbers do not shift.
const strictPrologue = `"use strict";void 0;`

// classifyJS stringifies the stashed completion value. The leading letter
// tags the outcome: u undefined, n null, v rendered value, x unrenderable.
const classifyJS = `(function() {
	var v = globalThis.__mqjs_result;
	delete globalThis.__mqjs_result;
	if (v === undefined) return 'u';
	if (v === null) return 'n';
	try {
		return 'v' + String(v);
	} catch (e) {
		return 'x';
	}
})()`

// Engine is one V8 isolate and context with the shell's globals installed.
type Engine struct {
	iso    *v8.Isolate
	ctx    *v8.Context
	rt     *v8Runtime
	budget int
	dead   atomic.Bool
	closed bool
}

var _ core.ScriptEngine = (*Engine)(nil)

// New creates a V8 isolate whose console writes to sink.
func New(cfg core.EngineConfig, sink core.OutputSink) (*Engine, error) {
	budget := cfg.MemoryBudget
	if budget == 0 {
		budget = DefaultMemoryBudget
	}

	var iso *v8.Isolate
	if budget >= minHeapConstraint {
		heapSize := uint64(budget)
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	rt := &v8Runtime{iso: iso, ctx: ctx}

	if err := webapi.Apply(rt, sink, webapi.Setups(cfg)); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("setup: %w", err)
	}

	return &Engine{iso: iso, ctx: ctx, rt: rt, budget: budget}, nil
}

// Version reports the embedded V8 release.
func Version() string {
	return "V8 " + v8.Version()
}

// Evaluate runs source as global code. Cancelling ctx terminates the
// script; a terminated engine is no longer alive.
func (e *Engine) Evaluate(ctx context.Context, source string, mode core.EvalMode) (out core.Outcome) {
	if !e.Alive() {
		return core.Exception("engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return core.Interrupted(ctx)
	}

	var interrupted atomic.Bool
	stop := context.AfterFunc(ctx, func() {
		interrupted.Store(true)
		e.iso.TerminateExecution()
	})

	defer func() {
		stop()
		if r := recover(); r != nil {
			e.dead.Store(true)
			out = core.Exception(fmt.Sprintf("engine panic: %v", r))
		}
		if interrupted.Load() {
			e.dead.Store(true)
			out = core.Interrupted(ctx)
		}
	}()

	if mode == core.ModeStrict {
		source = strictPrologue + source
	}

	val, err := e.ctx.RunScript(source, "<input>")
	if err != nil {
		out = exceptionOutcome(err)
	} else {
		out = e.classify(val)
	}
	if !interrupted.Load() {
		e.rt.RunMicrotasks()
	}
	return out
}

func exceptionOutcome(err error) core.Outcome {
	var jsErr *v8.JSError
	if !errors.As(err, &jsErr) {
		return core.ExceptionAbsent()
	}
	// v8go reports String(thrown) as the message: empty when the thrown
	// value has no usable string conversion, "undefined" for a thrown
	// undefined. A thrown "undefined" string lands in the same case.
	switch jsErr.Message {
	case "":
		return core.ExceptionUnrenderable()
	case "undefined":
		return core.ExceptionAbsent()
	}
	return core.Exception(jsErr.Message)
}

func (e *Engine) classify(val *v8.Value) core.Outcome {
	if val == nil || val.IsUndefined() {
		return core.Undefined()
	}
	if val.IsNull() {
		return core.Null()
	}
	if err := e.ctx.Global().Set("__mqjs_result", val); err != nil {
		return core.Unrenderable()
	}
	tagged, err := e.ctx.RunScript(classifyJS, "classify.js")
	if err != nil {
		return core.Unrenderable()
	}
	s := tagged.String()
	switch s[0] {
	case 'u':
		return core.Undefined()
	case 'n':
		return core.Null()
	case 'v':
		return core.Value(s[1:])
	}
	return core.Unrenderable()
}

// Alive reports whether the engine can run another evaluation.
func (e *Engine) Alive() bool {
	return !e.closed && !e.dead.Load()
}

// MemoryBudget returns the heap limit the engine was built with.
func (e *Engine) MemoryBudget() int {
	return e.budget
}

// Close disposes the context and isolate.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.ctx.Close()
	e.iso.Dispose()
	return nil
}
