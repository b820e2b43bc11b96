//go:build v8

package v8engine

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

func TestEvaluate_Classification(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	tests := []struct {
		name string
		src  string
		want core.Outcome
	}{
		{"number", "1 + 2", core.Value("3")},
		{"string", "'hello'", core.Value("hello")},
		{"undefined", "undefined", core.Undefined()},
		{"declaration", "var x = 5", core.Undefined()},
		{"null", "null", core.Null()},
		{"unrenderable", "Object.create(null)", core.Unrenderable()},
		{"thrown error", "throw new Error('boom')", core.Exception("Error: boom")},
		{"thrown string", "throw 'bad'", core.Exception("bad")},
		{"thrown undefined", "throw undefined", core.ExceptionAbsent()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(context.Background(), tt.src, core.ModeImplicitGlobals)
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %+v, want %+v", tt.src, got, tt.want)
			}
		})
	}
}

func TestEvaluate_StrictMode(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	got := e.Evaluate(context.Background(), "undeclared = 1", core.ModeStrict)
	if got.Kind != core.KindException || !strings.Contains(got.Text, "ReferenceError") {
		t.Errorf("strict assignment = %+v, want ReferenceError", got)
	}
	if got := e.Evaluate(context.Background(), "var y = 2", core.ModeStrict); got != core.Undefined() {
		t.Errorf("strict declaration = %+v, want undefined", got)
	}
}

func TestEvaluate_UnboundedRecursion(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	got := e.Evaluate(context.Background(), "function r() { return r() } r()", core.ModeImplicitGlobals)
	if got.Kind != core.KindException || !strings.HasPrefix(got.Text, "RangeError") {
		t.Errorf("Evaluate = %+v, want RangeError", got)
	}
	if got := e.Evaluate(context.Background(), "1", core.ModeImplicitGlobals); got != core.Value("1") {
		t.Errorf("after overflow = %+v, want 1", got)
	}
}

func TestConsole_WritesToSink(t *testing.T) {
	e, out := newTestEngine(t, core.EngineConfig{})

	e.Evaluate(context.Background(), `console.log("a", 1); print("p")`, core.ModeImplicitGlobals)
	if got := out.Snapshot(); got != "a 1\np\n" {
		t.Errorf("output = %q", got)
	}
}

func TestEvaluate_Timeout(t *testing.T) {
	e, _ := newTestEngine(t, core.EngineConfig{})

	ctx, cancel := context.WithTimeoutCause(context.Background(), 50*time.Millisecond,
		&core.TimeoutError{Limit: 50 * time.Millisecond})
	defer cancel()

	got := e.Evaluate(ctx, "for (;;) {}", core.ModeImplicitGlobals)
	if got != core.Exception("execution timed out (limit: 50ms)") {
		t.Errorf("outcome = %+v", got)
	}
	if e.Alive() {
		t.Error("terminated engine should not be alive")
	}
}
