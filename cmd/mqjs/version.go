package main

import (
	"fmt"

	"github.com/cryguy/mqjs"
	"github.com/spf13/cobra"
)

func versionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the shell and engine version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.wasmPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), mqjs.Version())
				return nil
			}
			sh, release, err := e.openShell(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			fmt.Fprintln(cmd.OutOrStdout(), sh.Version())
			return nil
		},
	}
}
