package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "askcorpus %s\n", AppVersion)
			fmt.Fprintf(out, "build time: %s\n", BuildTime)
			fmt.Fprintf(out, "git commit: %s\n", GitCommit)
			return nil
		},
	}
}
