package mqjs

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cryguy/mqjs/internal/core"
)

// scriptedEngine is a ScriptEngine whose behaviour is driven by simple
// source directives: "print:<text>" writes text to the sink, "throw:<msg>"
// raises, "hang" blocks until cancelled, anything else evaluates to itself.
type scriptedEngine struct {
	sink   core.OutputSink
	dead   bool
	closed bool
	modes  []core.EvalMode
}

func (e *scriptedEngine) Evaluate(ctx context.Context, source string, mode core.EvalMode) core.Outcome {
	e.modes = append(e.modes, mode)
	var out core.Outcome = core.Undefined()
	for _, stmt := range strings.Split(source, ";") {
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "":
		case strings.HasPrefix(stmt, "print:"):
			e.sink.Write([]byte(strings.TrimPrefix(stmt, "print:") + "\n"))
			out = core.Undefined()
		case strings.HasPrefix(stmt, "throw:"):
			return core.Exception(strings.TrimPrefix(stmt, "throw:"))
		case stmt == "absent":
			return core.ExceptionAbsent()
		case stmt == "opaque":
			out = core.Unrenderable()
		case stmt == "null":
			out = core.Null()
		case stmt == "undefined":
			out = core.Undefined()
		case stmt == "hang":
			<-ctx.Done()
			e.dead = true
			return core.Interrupted(ctx)
		case stmt == "die":
			e.dead = true
			return core.Exception("engine panic: boom")
		default:
			out = core.Value(stmt)
		}
	}
	return out
}

func (e *scriptedEngine) Alive() bool { return !e.dead && !e.closed }

func (e *scriptedEngine) Close() error {
	e.closed = true
	return nil
}

// scriptedFactory counts how many engines it has built and can be made
// to fail.
type scriptedFactory struct {
	mu      sync.Mutex
	built   []*scriptedEngine
	configs []core.EngineConfig
	fail    bool
}

func (f *scriptedFactory) New(cfg core.EngineConfig, sink core.OutputSink) (core.ScriptEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no memory for engine")
	}
	e := &scriptedEngine{sink: sink}
	f.built = append(f.built, e)
	f.configs = append(f.configs, cfg)
	return e, nil
}

func (f *scriptedFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func (f *scriptedFactory) last() *scriptedEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}
