package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cryguy/mqjs"
	"github.com/cryguy/mqjs/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.wasmPath != "" {
				return errors.New("--wasm is not supported by serve")
			}
			if addr != "" {
				e.cfg.Server.Addr = addr
			}

			mgr, err := mqjs.NewManager(e.cfg.Session, e.cfg.Manager, mqjs.WithLogger(e.log))
			if err != nil {
				return err
			}
			opts := []server.Option{server.WithLogger(e.log)}
			store, err := e.openHistory()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				opts = append(opts, server.WithHistory(store))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e.log.Info("starting server",
				zap.String("version", mqjs.Version()),
				zap.String("addr", e.cfg.Server.Addr))
			return server.New(mgr, e.cfg.Server, opts...).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overriding server.addr.")
	return cmd
}

