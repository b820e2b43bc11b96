package mqjs

import (
	"github.com/cryguy/mqjs/internal/core"
	"go.uber.org/zap"
)

type options struct {
	log     *zap.Logger
	factory core.EngineFactory
}

// Option configures a Session or a Manager.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithEngineFactory replaces the compiled-in engine backend.
func WithEngineFactory(f core.EngineFactory) Option {
	return func(o *options) {
		if f != nil {
			o.factory = f
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), factory: newBackend}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
