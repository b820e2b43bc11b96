package core

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) behind the
// small surface the shared setup functions in internal/webapi need.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// RegisterFunc installs fn as a global JavaScript function taking one
	// string argument. Non-string arguments are converted with String().
	RegisterFunc(name string, fn func(string)) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()
}
