package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func addVersion(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the feedd version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feedd %s (%s, %s)\n", version, commit, runtime.Version())
		},
	}

	topLevel.AddCommand(cmd)
}
