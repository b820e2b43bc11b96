package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cryguy/mqjs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	replPrompt = "> "
	replHelp   = `.reset   discard all globals
.clear   empty the output buffer
.output  show what scripts have printed since the last clear
.help    show this message
.exit    quit
`
)

func replCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, release, err := e.openShell(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			if err := sh.Initialize(); err != nil {
				return err
			}

			store, err := e.openHistory()
			if err != nil {
				e.log.Warn("history unavailable", zap.Error(err))
			}
			if store != nil {
				defer store.Close()
			}
			rec := &recorder{store: store, session: cliSession, log: e.log}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\nType .help for commands.\n", sh.Version())
			return repl(cmd.Context(), sh, cmd.InOrStdin(), out, rec)
		},
	}
}

// repl reads one line of source at a time until .exit or end of input.
func repl(ctx context.Context, sh mqjs.Shell, in io.Reader, out io.Writer, rec *recorder) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Fprint(out, replPrompt)
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case ".exit":
			return nil
		case ".help":
			fmt.Fprint(out, replHelp)
		case ".reset":
			if err := sh.Reset(); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
			}
		case ".clear":
			sh.ClearOutput()
		case ".output":
			fmt.Fprint(out, sh.Output())
		default:
			ev := evaluate(ctx, sh, line)
			rec.record(line, ev)
			printResult(out, ev.text)
		}
	}
}

// printResult writes text on a line of its own. Text that already ends in
// a newline (output followed by an undefined result) gets no second one.
func printResult(out io.Writer, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(out, text)
	return err
}
