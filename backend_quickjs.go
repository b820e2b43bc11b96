//go:build !v8

package mqjs

import (
	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/quickjs"
)

const defaultMemoryBudget = quickjs.DefaultMemoryBudget

func newBackend(cfg core.EngineConfig, sink core.OutputSink) (core.ScriptEngine, error) {
	e, err := quickjs.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func backendVersion() string {
	return quickjs.Version()
}
