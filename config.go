package mqjs

import (
	"fmt"
	"time"

	"github.com/cryguy/mqjs/internal/core"
)

const (
	// DefaultOutputCapacity is the size of a session's output buffer,
	// terminator included.
	DefaultOutputCapacity = 64 << 10
	// DefaultResultCapacity is the size of a session's result buffer,
	// terminator included.
	DefaultResultCapacity = 64 << 10
	// DefaultExecutionTimeout bounds one evaluation.
	DefaultExecutionTimeout = 10 * time.Second
)

// EvalMode selects how a session compiles top-level source.
type EvalMode = core.EvalMode

const (
	ModeImplicitGlobals = core.ModeImplicitGlobals
	ModeStrict          = core.ModeStrict
)

// Kind tags the outcome of one evaluation.
type Kind = core.Kind

const (
	KindUndefined             = core.KindUndefined
	KindNull                  = core.KindNull
	KindValue                 = core.KindValue
	KindUnrenderable          = core.KindUnrenderable
	KindException             = core.KindException
	KindExceptionUnrenderable = core.KindExceptionUnrenderable
	KindExceptionAbsent       = core.KindExceptionAbsent
)

// Loader names the source dialect a session accepts.
type Loader string

const (
	LoaderJS Loader = "js" // plain JavaScript, passed through untouched
	LoaderTS Loader = "ts" // TypeScript, stripped to JavaScript before evaluation
)

// Config holds the per-session settings. Zero fields fall back to the
// defaults above or to the engine backend's defaults.
type Config struct {
	MemoryBudget     int           `koanf:"memory_budget"`     // engine heap limit in bytes
	OutputCapacity   int           `koanf:"output_capacity"`   // output buffer size in bytes
	ResultCapacity   int           `koanf:"result_capacity"`   // result buffer size in bytes
	ExecutionTimeout time.Duration `koanf:"execution_timeout"` // negative disables the limit
	Mode             EvalMode      `koanf:"mode"`
	StdLib           bool          `koanf:"stdlib"` // extended console methods
	Loader           Loader        `koanf:"loader"`
}

// DefaultConfig returns the configuration a session uses when none is given.
func DefaultConfig() Config {
	return Config{
		OutputCapacity:   DefaultOutputCapacity,
		ResultCapacity:   DefaultResultCapacity,
		ExecutionTimeout: DefaultExecutionTimeout,
		Mode:             ModeImplicitGlobals,
		Loader:           LoaderJS,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.MemoryBudget < 0 {
		return fmt.Errorf("memory_budget must not be negative, got %d", c.MemoryBudget)
	}
	if c.OutputCapacity < 0 || c.OutputCapacity == 1 {
		return fmt.Errorf("output_capacity must be 0 or at least 2, got %d", c.OutputCapacity)
	}
	if c.ResultCapacity < 0 || c.ResultCapacity == 1 {
		return fmt.Errorf("result_capacity must be 0 or at least 2, got %d", c.ResultCapacity)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Loader {
	case "", LoaderJS, LoaderTS:
	default:
		return fmt.Errorf("unknown loader %q", c.Loader)
	}
	return nil
}

func (c Config) memoryBudget() int {
	if c.MemoryBudget > 0 {
		return c.MemoryBudget
	}
	return defaultMemoryBudget
}

func (c Config) withDefaults() Config {
	if c.OutputCapacity == 0 {
		c.OutputCapacity = DefaultOutputCapacity
	}
	if c.ResultCapacity == 0 {
		c.ResultCapacity = DefaultResultCapacity
	}
	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}
	if c.Mode == "" {
		c.Mode = ModeImplicitGlobals
	}
	if c.Loader == "" {
		c.Loader = LoaderJS
	}
	return c
}
