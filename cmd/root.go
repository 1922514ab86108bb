// Package cmd defines and implements the CLI commands for the
// recipe-archiver executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe-archiver",
		Short: "Archives recipe web pages for offline access.",
		Long: `recipe-archiver crawls user-submitted recipe pages, stores a browsable
snapshot of each site in blob storage, and tracks every crawl as a job
with a full lifecycle: queued, in progress, succeeded, or failed with
a retry path.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./archiver.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
