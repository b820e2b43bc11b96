// Package webapi installs the script-visible globals shared by every engine
// backend: the output primitives, the unsupported-capability stubs, and the
// optional console extensions.
package webapi

import "github.com/cryguy/mqjs/internal/core"

// SetupFunc configures one aspect of a fresh JS runtime.
type SetupFunc func(rt core.JSRuntime, sink core.OutputSink) error

// Setups returns the setup functions a backend runs, in order, on every new
// engine instance.
func Setups(cfg core.EngineConfig) []SetupFunc {
	fns := []SetupFunc{
		// console.log/info/warn/error/debug and print, backed by the sink
		SetupConsole,
		// setTimeout and friends throw immediately
		SetupTimers,
		// load() throws, queueMicrotask
		SetupGlobals,
	}
	if cfg.StdLib {
		// console.time/count/assert/table/group/dir
		fns = append(fns, SetupConsoleExt)
	}
	return fns
}

// Apply runs every setup function against rt, stopping at the first error.
func Apply(rt core.JSRuntime, sink core.OutputSink, fns []SetupFunc) error {
	for _, setup := range fns {
		if err := setup(rt, sink); err != nil {
			return err
		}
	}
	return nil
}
