package webapi

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/mqjs/internal/core"
)

// timerNames are the asynchronous scheduling globals the shell rejects.
// Evaluation is strictly synchronous, so a callback scheduled here would
// never fire.
var timerNames = []string{
	"setTimeout",
	"setInterval",
	"setImmediate",
	"clearTimeout",
	"clearInterval",
	"clearImmediate",
}

const timersJS = `
(function() {
	var msgs = %s;
	Object.keys(msgs).forEach(function(name) {
		globalThis[name] = function() {
			throw new Error(msgs[name]);
		};
	});
})();
`

// SetupTimers installs timer functions that throw as soon as they are called.
func SetupTimers(rt core.JSRuntime, _ core.OutputSink) error {
	msgs := make(map[string]string, len(timerNames))
	for _, name := range timerNames {
		msgs[name] = core.UnsupportedError(name, "timers are unavailable in this environment")
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding timer messages: %w", err)
	}
	return rt.Eval(fmt.Sprintf(timersJS, data))
}
