//go:build v8

package mqjs

import (
	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/v8engine"
)

const defaultMemoryBudget = v8engine.DefaultMemoryBudget

func newBackend(cfg core.EngineConfig, sink core.OutputSink) (core.ScriptEngine, error) {
	e, err := v8engine.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func backendVersion() string {
	return v8engine.Version()
}
