package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd(e *env) *cobra.Command {
	var (
		session string
		limit   int
		purge   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or purge recorded evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := e.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("history is disabled")
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if purge {
				if session == "" {
					return errors.New("--purge needs --session")
				}
				n, err := store.Purge(session)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "purged %d entries\n", n)
				return nil
			}

			entries, err := store.Recent(session, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSESSION\tKIND\tSOURCE\tRESULT")
			for _, en := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					en.CreatedAt.Local().Format(time.DateTime),
					en.SessionID, en.Kind, oneLine(en.Source), oneLine(en.Result))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Only this session.")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to list.")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete the session's entries instead of listing them.")
	return cmd
}

func oneLine(s string) string {
	const width = 60
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > width {
		return string(r[:width-3]) + "..."
	}
	return string(r)
}
