// Package cmd is the command line of the case explainer.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// logLevel overrides LOG_LEVEL when set.
	logLevel string

	// serverURL is the running server targeted by invalidate, stats and forget.
	serverURL string

	// jsonOutput switches command output to JSON.
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "case-explainer",
	Short: "Explain benefits decisions from case data",
	Long: `case-explainer answers applicant questions about their benefits case.

It gathers the case record, extracted documents, similar cases and
recommended programs, ranks them against the question and asks a text
generation service for a grounded answer.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newInvalidateCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newForgetCmd())
}
