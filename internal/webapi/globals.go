package webapi

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/mqjs/internal/core"
)

const globalsJS = `
(function() {
	var loadMsg = %s;
	globalThis.load = function() {
		throw new Error(loadMsg);
	};
	if (typeof Promise === 'function') {
		globalThis.queueMicrotask = function(fn) {
			if (typeof fn !== 'function') {
				throw new TypeError('queueMicrotask: argument must be a function');
			}
			Promise.resolve().then(fn);
		};
	}
})();
`

// SetupGlobals installs load, which rejects file access, and
// queueMicrotask, whose jobs are drained before an evaluation returns.
func SetupGlobals(rt core.JSRuntime, _ core.OutputSink) error {
	msg, err := json.Marshal(core.UnsupportedError("load", "file loading is unavailable in this environment"))
	if err != nil {
		return fmt.Errorf("encoding load message: %w", err)
	}
	return rt.Eval(fmt.Sprintf(globalsJS, msg))
}
