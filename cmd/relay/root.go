package main

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - OpenAI-compatible inference gateway",
	Long: `Relay accepts OpenAI-compatible chat completion requests and forwards them
to Anthropic or OpenAI-compatible upstreams.

Each response is coordinated so that headers are written at most once and the
response is finalized exactly once, no matter which of completion, upstream
failure, client disconnect or timeout happens first. In-flight requests are
tracked and can be inspected with "relay diag".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "relay.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
