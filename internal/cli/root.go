// Package cli wires the arbiter commands: a long-running evaluation service
// and a one-shot evaluation of a single run file.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// suiteFile overrides the suite file path from config/env.
	suiteFile string

	rootCmd = &cobra.Command{
		Use:   "arbiter",
		Short: "Asynchronous run evaluation service",
		Long: `Arbiter receives completed runs and dispatches them to a configured
suite of evaluators for asynchronous scoring. Feedback is persisted locally
and exposed over an HTTP API.`,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&suiteFile, "suite", "", "suite file (default is ./arbiter.yaml)")
}
