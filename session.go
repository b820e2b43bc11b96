// Package mqjs is an embeddable JavaScript shell. A Session evaluates one
// source string at a time against a persistent global scope and returns
// everything the script printed followed by the rendered result, as a
// single bounded string.
package mqjs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/outbuf"
	"github.com/cryguy/mqjs/internal/render"
	"go.uber.org/zap"
)

// initFailedText is what Run returns when no engine can be built.
const initFailedText = "Error: Failed to initialize engine"

// Result describes one evaluation.
type Result struct {
	Text            string        // rendered output and value, or an "Error: " line
	Kind            Kind          // outcome of the evaluation
	OutputTruncated bool          // a console write was dropped for lack of space
	ResultTruncated bool          // Text was cut to fit the result buffer
	Duration        time.Duration // wall time of the evaluation
}

// Session owns one engine and the two buffers its results are assembled
// in. Its methods serialize on an internal mutex; evaluations never
// overlap.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	factory core.EngineFactory
	log     *zap.Logger
	out     *outbuf.Buffer
	res     *render.Renderer
	engine  core.ScriptEngine

	lastUsed atomic.Int64 // unix nanos
}

// NewSession validates cfg and allocates the session's buffers. The engine
// itself is built by Initialize or the first Run.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	cfg = cfg.withDefaults()
	o := buildOptions(opts)

	s := &Session{
		cfg:     cfg,
		factory: o.factory,
		log:     o.log,
		out:     outbuf.New(cfg.OutputCapacity),
		res:     render.New(cfg.ResultCapacity),
	}
	s.touch()
	return s, nil
}

// Initialize builds the engine if the session has none.
func (s *Session) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *Session) initLocked() error {
	if s.engine != nil {
		if s.engine.Alive() {
			return nil
		}
		s.discardLocked("engine no longer alive")
	}

	e, err := s.factory(core.EngineConfig{
		MemoryBudget: s.cfg.MemoryBudget,
		StdLib:       s.cfg.StdLib,
	}, s.out)
	if err != nil {
		s.log.Error("engine initialization failed", zap.Error(err))
		return fmt.Errorf("initializing engine: %w", err)
	}
	s.engine = e
	s.log.Debug("engine created",
		zap.Int("memory_budget", s.MemoryBudget()),
		zap.String("mode", string(s.cfg.Mode)))
	return nil
}

func (s *Session) discardLocked(reason string) {
	if s.engine == nil {
		return
	}
	if err := s.engine.Close(); err != nil {
		s.log.Warn("closing engine", zap.Error(err))
	}
	s.engine = nil
	s.log.Debug("engine discarded", zap.String("reason", reason))
}

// Run evaluates source and returns the rendered result.
func (s *Session) Run(source string) string {
	return s.Exec(context.Background(), source).Text
}

// Exec evaluates source under ctx and the session's execution timeout.
// The output buffer is cleared first, so Text holds only what this
// evaluation printed.
func (s *Session) Exec(ctx context.Context, source string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	start := time.Now()
	if err := s.initLocked(); err != nil {
		return Result{Text: initFailedText, Kind: KindException, Duration: time.Since(start)}
	}

	s.out.Clear()

	outcome := s.evaluateLocked(ctx, source)
	text := s.res.Render(outcome, s.out.Snapshot())

	r := Result{
		Text:            text,
		Kind:            outcome.Kind,
		OutputTruncated: s.out.Truncated(),
		ResultTruncated: s.res.Truncated(),
		Duration:        time.Since(start),
	}
	if r.OutputTruncated || r.ResultTruncated {
		s.log.Debug("evaluation truncated",
			zap.Bool("output", r.OutputTruncated),
			zap.Bool("result", r.ResultTruncated))
	}
	return r
}

func (s *Session) evaluateLocked(ctx context.Context, source string) core.Outcome {
	source, err := transformSource(source, s.cfg.Loader)
	if err != nil {
		return core.Exception(err.Error())
	}

	if limit := s.cfg.ExecutionTimeout; limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, limit, &core.TimeoutError{Limit: limit})
		defer cancel()
	}

	outcome := s.engine.Evaluate(ctx, source, s.cfg.Mode)
	if !s.engine.Alive() {
		s.log.Warn("discarding engine after interrupted evaluation",
			zap.String("outcome", outcome.Text))
		s.discardLocked("interrupted")
	}
	return outcome
}

// Reset discards all script state and builds a fresh engine.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked("reset")
	return s.initLocked()
}

// Cleanup discards the engine, if any.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked("cleanup")
}

// ClearOutput empties the output buffer.
func (s *Session) ClearOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Clear()
}

// Output returns what scripts have printed since the last clear.
func (s *Session) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Snapshot()
}

// OutputTruncated reports whether a console write was dropped since the
// last clear.
func (s *Session) OutputTruncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Truncated()
}

// Version identifies the shell and its engine backend.
func (s *Session) Version() string {
	return Version()
}

// MemoryBudget returns the engine heap limit in bytes.
func (s *Session) MemoryBudget() int {
	return s.cfg.memoryBudget()
}

// Config returns the session's effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// LastUsed returns when the session last finished an evaluation.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Version identifies the shell and the compiled-in engine backend.
func Version() string {
	return "mqjs (" + backendVersion() + ")"
}
