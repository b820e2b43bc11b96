package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// OutputSink receives already-formatted bytes printed by script-visible
// primitives during an evaluation.
type OutputSink interface {
	Write(p []byte)
}

// EvalMode selects how top-level source is compiled.
type EvalMode string

const (
	// ModeImplicitGlobals evaluates sloppy global code: assigning to an
	// undeclared name creates a global binding.
	ModeImplicitGlobals EvalMode = "implicit-globals"
	// ModeStrict evaluates strict global code: assigning to an undeclared
	// name throws a ReferenceError.
	ModeStrict EvalMode = "strict"
)

// Valid reports whether m names a known mode. The empty mode is valid and
// means ModeImplicitGlobals.
func (m EvalMode) Valid() bool {
	switch m {
	case "", ModeImplicitGlobals, ModeStrict:
		return true
	}
	return false
}

// ScriptEngine is one isolated evaluation environment with its own global
// scope. Implementations are not safe for concurrent use.
type ScriptEngine interface {
	// Evaluate runs source as global code and reports exactly one Outcome.
	// Cancelling ctx interrupts the running script.
	Evaluate(ctx context.Context, source string, mode EvalMode) Outcome

	// Alive reports whether the engine can accept another Evaluate call.
	// An engine that was interrupted or panicked is no longer alive.
	Alive() bool

	// Close releases the engine. It is safe to call more than once.
	Close() error
}

// EngineFactory builds a ScriptEngine whose output primitives write to sink.
type EngineFactory func(cfg EngineConfig, sink OutputSink) (ScriptEngine, error)

// UnsupportedError formats the message thrown by primitives that need
// capabilities the shell does not provide.
func UnsupportedError(name, reason string) string {
	return fmt.Sprintf("%s is not supported: %s", name, reason)
}

// TimeoutError is the cancellation cause a caller attaches when it bounds
// an evaluation with a wall-clock limit.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out (limit: %v)", e.Limit)
}

// Interrupted is the Outcome an engine reports when ctx stops a running
// evaluation.
func Interrupted(ctx context.Context) Outcome {
	cause := context.Cause(ctx)
	var te *TimeoutError
	switch {
	case errors.As(cause, &te):
		return Exception(te.Error())
	case errors.Is(cause, context.DeadlineExceeded):
		return Exception("execution timed out")
	}
	return Exception(fmt.Sprintf("execution canceled: %v", cause))
}
