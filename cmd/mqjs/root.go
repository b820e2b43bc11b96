package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cryguy/mqjs"
	"github.com/cryguy/mqjs/internal/config"
	"github.com/cryguy/mqjs/internal/history"
	"github.com/cryguy/mqjs/internal/wasmhost"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var _ mqjs.Shell = (*wasmhost.Host)(nil)

// env is what every subcommand shares once flags are parsed.
type env struct {
	configPath string
	wasmPath   string
	wasmMemory uint64
	historyOff bool

	cfg *config.Config
	log *zap.Logger
}

func rootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "mqjs",
		Short:         "A small embeddable JavaScript shell",
		Long:          "mqjs evaluates JavaScript against a persistent global scope and prints what the script wrote followed by its result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "YAML config file merged over the built-in defaults.")
	root.PersistentFlags().StringVar(&e.wasmPath, "wasm", "", "Evaluate with this compiled WebAssembly shell instead of the built-in engine.")
	root.PersistentFlags().Uint64Var(&e.wasmMemory, "wasm-memory", 0, "Cap the WebAssembly shell's linear memory, in bytes. Zero keeps the 4 GiB default.")
	root.PersistentFlags().BoolVar(&e.historyOff, "no-history", false, "Do not record evaluations.")

	root.AddCommand(
		runCmd(e),
		replCmd(e),
		serveCmd(e),
		historyCmd(e),
		versionCmd(e),
	)
	return root
}

func (e *env) load() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Log.Logger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	e.cfg = cfg
	e.log = log
	return nil
}

// openShell returns the shell run and repl evaluate with, and a function
// that releases it.
func (e *env) openShell(ctx context.Context) (mqjs.Shell, func(), error) {
	if e.wasmPath == "" {
		s, err := mqjs.NewSession(e.cfg.Session, mqjs.WithLogger(e.log))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Cleanup, nil
	}

	wasm, err := os.ReadFile(e.wasmPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading wasm module: %w", err)
	}
	opts := []wasmhost.Option{wasmhost.WithLogger(e.log)}
	if t := e.cfg.Session.ExecutionTimeout; t > 0 {
		opts = append(opts, wasmhost.WithTimeout(t))
	}
	if e.wasmMemory > 0 {
		opts = append(opts, wasmhost.WithMaxMemory(e.wasmMemory))
	}
	h, err := wasmhost.New(ctx, wasm, opts...)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := h.Close(context.Background()); err != nil {
			e.log.Warn("closing wasm host", zap.Error(err))
		}
	}
	return h, release, nil
}

// openHistory returns nil when history is disabled.
func (e *env) openHistory() (*history.Store, error) {
	if e.historyOff || !e.cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(e.cfg.History.Path)
}

// evaluation is one evaluation as the CLI reports and records it.
type evaluation struct {
	text     string
	kind     string
	duration time.Duration
}

// evaluate runs source on sh. Only an in-process session reports the
// outcome kind; the wasm shell answers with text alone.
func evaluate(ctx context.Context, sh mqjs.Shell, source string) evaluation {
	if s, ok := sh.(*mqjs.Session); ok {
		r := s.Exec(ctx, source)
		return evaluation{text: r.Text, kind: r.Kind.String(), duration: r.Duration}
	}
	start := time.Now()
	text := sh.Run(source)
	return evaluation{text: text, kind: "unknown", duration: time.Since(start)}
}

// recorder writes CLI evaluations to the history store under one session
// name. Failures are logged, never fatal.
type recorder struct {
	store   *history.Store
	session string
	log     *zap.Logger
}

func (r *recorder) record(source string, ev evaluation) {
	if r == nil || r.store == nil {
		return
	}
	err := r.store.Record(&history.Entry{
		SessionID:  r.session,
		Source:     source,
		Result:     ev.text,
		Kind:       ev.kind,
		DurationUS: ev.duration.Microseconds(),
	})
	if err != nil {
		r.log.Warn("recording history", zap.Error(err))
	}
}
