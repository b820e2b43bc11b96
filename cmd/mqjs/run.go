package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const cliSession = "cli"

func runCmd(e *env) *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:     "run [file]",
		Short:   "Evaluate a file, an expression or stdin and print the result",
		Example: "mqjs run script.js\nmqjs run -e '1 + 2'\necho 'print(6 * 7)' | mqjs run -",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expr != "" && len(args) > 0 {
				return errors.New("give either a file or -e, not both")
			}
			source := expr
			if expr == "" {
				src, err := readSource(cmd.InOrStdin(), args)
				if err != nil {
					return err
				}
				source = src
			}

			sh, release, err := e.openShell(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			store, err := e.openHistory()
			if err != nil {
				e.log.Warn("history unavailable", zap.Error(err))
			}
			if store != nil {
				defer store.Close()
			}

			ev := evaluate(cmd.Context(), sh, source)
			(&recorder{store: store, session: cliSession, log: e.log}).record(source, ev)
			return printResult(cmd.OutOrStdout(), ev.text)
		},
	}
	cmd.Flags().StringVarP(&expr, "eval", "e", "", "Evaluate this source instead of a file.")
	return cmd
}

func readSource(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	return string(b), nil
}
