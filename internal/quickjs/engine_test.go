//go:build !v8

package quickjs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/outbuf"
)

func newTestEngine(t *testing.T, cfg core.EngineConfig) (*Engine, *outbuf.Buffer) {
	t.Helper()
	out := outbuf.New(4096)
	e, err := New(cfg, out)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, out
}

func eval(t *testing.T, e *Engine, src string) core.Outcome {
	t.Helper()
	return e.Evaluate(context.Background(), src, core.ModeImplicitGlobals)
}

func TestEvaluate_Classification(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	tests := []struct {
		name string
		src  string
		want core.Outcome
	}{
		{"number", "1 + 2", core.Value("3")},
		{"string", "'hello'", core.Value("hello")},
		{"empty string", "''", core.Value("")},
		{"boolean", "3 > 2", core.Value("true")},
		{"array", "[1, 2, 3]", core.Value("1,2,3")},
		{"object", "({a: 1})", core.Value("[object Object]")},
		{"undefined", "undefined", core.Undefined()},
		{"declaration", "var x = 5", core.Undefined()},
		{"empty source", "", core.Undefined()},
		{"null", "null", core.Null()},
		{"unrenderable", "Object.create(null)", core.Unrenderable()},
		{"throwing toString", "({toString() { throw new Error('no') }})", core.Unrenderable()},
		{"thrown error", "throw new Error('boom')", core.Exception("Error: boom")},
		{"thrown string", "throw 'bad'", core.Exception("bad")},
		{"thrown undefined", "throw undefined", core.ExceptionAbsent()},
		{"rejected with undefined", "Promise.reject(undefined); 1", core.Value("1")},
		{"thrown unrenderable", "throw Object.create(null)", core.ExceptionUnrenderable()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eval(t, e, tt.src)
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %+v, want %+v", tt.src, got, tt.want)
			}
		})
	}
}

func TestEvaluate_ReferenceError(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	got := eval(t, e, "notDefined")
	if got.Kind != core.KindException {
		t.Fatalf("kind = %v, want exception", got.Kind)
	}
	if !strings.HasPrefix(got.Text, "ReferenceError") || !strings.Contains(got.Text, "notDefined") {
		t.Errorf("text = %q", got.Text)
	}
}

func TestEvaluate_SyntaxError(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	got := eval(t, e, "var = ;")
	if got.Kind != core.KindException {
		t.Fatalf("kind = %v, want exception", got.Kind)
	}
	if !strings.HasPrefix(got.Text, "SyntaxError") {
		t.Errorf("text = %q, want SyntaxError prefix", got.Text)
	}
	if !e.Alive() {
		t.Error("engine should survive a syntax error")
	}
}

func TestEvaluate_GlobalsPersist(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	if got := eval(t, e, "counter = 41"); got != core.Value("41") {
		t.Fatalf("assign = %+v", got)
	}
	if got := eval(t, e, "function inc() { return ++counter }"); got.Kind != core.KindUndefined {
		t.Fatalf("function declaration = %+v", got)
	}
	if got := eval(t, e, "inc()"); got != core.Value("42") {
		t.Errorf("inc() = %+v, want 42", got)
	}
}

func TestEvaluate_StrictMode(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	got := e.Evaluate(context.Background(), "undeclared = 1", core.ModeStrict)
	if got.Kind != core.KindException || !strings.Contains(got.Text, "ReferenceError") {
		t.Errorf("strict assignment = %+v, want ReferenceError", got)
	}

	got = e.Evaluate(context.Background(), "undeclared = 1", core.ModeImplicitGlobals)
	if got != core.Value("1") {
		t.Errorf("sloppy assignment = %+v, want 1", got)
	}
}

func TestConsole_WritesToSink(t *testing.T) {
	e, out := newTestEngine(t, core.EngineConfig{})

	eval(t, e, `console.log("a", 1, true); console.error("e"); print("p"); console.log()`)
	want := "a 1 true\ne\np\n\n"
	if got := out.Snapshot(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsole_WriteHelperIsHidden(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	if got := eval(t, e, "typeof __mqjs_write"); got != core.Value("undefined") {
		t.Errorf("typeof __mqjs_write = %+v, want undefined", got)
	}
}

func TestConsole_SkipsUnprintableArguments(t *testing.T) {
	e, out := newTestEngine(t, core.EngineConfig{})

	eval(t, e, `console.log("x", Object.create(null), "y")`)
	if got := out.Snapshot(); got != "x y\n" {
		t.Errorf("output = %q, want %q", got, "x y\n")
	}
}

func TestConsoleExt_OnlyWithStdLib(t *testing.T) {
	e, out := newTestEngine(t, core.EngineConfig{StdLib: true})
	eval(t, e, `console.count(); console.count(); console.count("x")`)
	if got := out.Snapshot(); got != "default: 1\ndefault: 2\nx: 1\n" {
		t.Errorf("output = %q", got)
	}

	bare, _ := newTestEngine(t, core.EngineConfig{})
	if got := eval(t, bare, "typeof console.count"); got != core.Value("undefined") {
		t.Errorf("typeof console.count = %+v, want undefined", got)
	}
}

func TestConsoleExt_GroupIndents(t *testing.T) {
	e, out := newTestEngine(t, core.EngineConfig{StdLib: true})
	eval(t, e, `
		console.group('g');
		console.log('a\nb');
		console.group();
		console.warn('c', 1);
		console.count();
		console.groupEnd();
		console.groupEnd();
		console.groupEnd();
		console.log('d');
		print('e');`)
	want := "g\n  a\n  b\n    c 1\n    default: 1\nd\ne\n"
	if got := out.Snapshot(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestEvaluate_UnboundedRecursion(t *testing.T) {
	tests := []string{
		"function r() { return r() } r()",
		"function r() { try { return r() } catch (e) { return 'caught' } } r()",
		"var o = { get x() { return this.x } }; o.x",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			e, _ := newTestEngine(t, core.EngineConfig{})
			got := eval(t, e, src)
			if got != core.Exception(stackOverflowText) {
				t.Errorf("Evaluate = %+v, want %q", got, stackOverflowText)
			}
			if e.Alive() {
				t.Error("engine still alive after a stack overflow")
			}
		})
	}
}

func TestEvaluate_DeepRecursionWithinLimit(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})
	got := eval(t, e, "function d(n) { return n === 0 ? 0 : 1 + d(n - 1) } d(5000)")
	if got != core.Value("5000") {
		t.Errorf("Evaluate = %+v, want 5000", got)
	}
	if !e.Alive() {
		t.Error("engine died on bounded recursion")
	}
}

func TestTimers_Throw(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout"} {
		got := eval(t, e, name+"(function() {}, 10)")
		if got.Kind != core.KindException {
			t.Errorf("%s: kind = %v, want exception", name, got.Kind)
			continue
		}
		if !strings.Contains(got.Text, name+" is not supported") {
			t.Errorf("%s: text = %q", name, got.Text)
		}
	}
}

func TestLoad_Throws(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	got := eval(t, e, `load("x.js")`)
	if got.Kind != core.KindException || !strings.Contains(got.Text, "load is not supported") {
		t.Errorf("load = %+v", got)
	}
}

func TestMicrotasks_DrainedBeforeReturn(t *testing.T) {
	e, out := newTestEngine(t, core.EngineConfig{})

	got := eval(t, e, `Promise.resolve(1).then(function(v) { console.log("then", v) }); queueMicrotask(function() { console.log("task") }); "sync"`)
	if got != core.Value("sync") {
		t.Errorf("result = %+v", got)
	}
	if s := out.Snapshot(); s != "then 1\ntask\n" {
		t.Errorf("output = %q", s)
	}
}

func TestMicrotasks_RejectionDoesNotLeak(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	eval(t, e, `Promise.resolve().then(function() { throw new Error("late") })`)
	if got := eval(t, e, "1"); got != core.Value("1") {
		t.Errorf("next evaluation = %+v, want 1", got)
	}
}

func TestEvaluate_Timeout(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	ctx, cancel := context.WithTimeoutCause(context.Background(), 50*time.Millisecond,
		&core.TimeoutError{Limit: 50 * time.Millisecond})
	defer cancel()

	start := time.Now()
	got := e.Evaluate(ctx, "for (;;) {}", core.ModeImplicitGlobals)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("interrupt took %v", elapsed)
	}
	if got != core.Exception("execution timed out (limit: 50ms)") {
		t.Errorf("outcome = %+v", got)
	}
	if e.Alive() {
		t.Error("interrupted engine should not be alive")
	}
}

func TestEvaluate_CanceledBeforeStart(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := e.Evaluate(ctx, "1", core.ModeImplicitGlobals)
	if got != core.Exception("execution canceled: context canceled") {
		t.Errorf("outcome = %+v", got)
	}
	if !e.Alive() {
		t.Error("engine that never ran should stay alive")
	}
}

func TestEvaluate_MemoryBudget(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{MemoryBudget: 1 << 20})

	got := eval(t, e, "(function() { var s = 'x'; for (;;) s += s; })()")
	if !got.Kind.IsException() {
		t.Fatalf("kind = %v, want an exception", got.Kind)
	}
	if got := eval(t, e, "2 * 21"); got != core.Value("42") {
		t.Errorf("after exhaustion = %+v, want 42", got)
	}
	if e.MemoryBudget() != 1<<20 {
		t.Errorf("MemoryBudget = %d", e.MemoryBudget())
	}
}

func TestNew_RejectsTinyBudget(t *testing.T) {
	if _, err := New(core.EngineConfig{MemoryBudget: 1024}, outbuf.New(64)); err == nil {
		t.Fatal("expected error for a 1 KiB budget")
	}
}

func TestClose_Idempotent(t *testing.T) {
	e, err := New(core.EngineConfig{}, outbuf.New(64))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if e.Alive() {
		t.Error("closed engine reports alive")
	}
	if got := eval(t, e, "1"); got.Kind != core.KindException {
		t.Errorf("evaluate after close = %+v", got)
	}
}

func TestVersion(t *testing.T) {
	if v := Version(); !strings.HasPrefix(v, "QuickJS ") || len(v) <= len("QuickJS ") {
		t.Errorf("Version() = %q", v)
	}
}
