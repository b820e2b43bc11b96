//go:build v8

package v8engine

import (
	"fmt"

	"github.com/cryguy/mqjs/internal/core"
	v8 "github.com/tommie/v8go"
)

// v8Runtime implements core.JSRuntime for the V8 engine.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.JSRuntime = (*v8Runtime)(nil)

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "setup.js")
	return err
}

// RegisterFunc registers fn as a global function. A missing argument
// throws; any other value is passed through String().
func (r *v8Runtime) RegisterFunc(name string, fn func(string)) error {
	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < 1 {
			msg, _ := v8.NewValue(r.iso, fmt.Sprintf("%s requires 1 argument", name))
			r.iso.ThrowException(msg)
			return nil
		}
		fn(args[0].String())
		return nil
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

// RunMicrotasks pumps the V8 microtask queue.
func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}
