// Relay is an OpenAI-compatible inference gateway.
//
// Every response it relays, plain or streamed over SSE or WebSocket, is
// owned by a lifecycle coordinator that guarantees exactly one termination,
// whichever of completion, upstream failure, client disconnect or a
// timeout comes first.
//
// Usage:
//
//	# Start the relay
//	relay run --config relay.yaml
//
//	# Check a configuration file
//	relay validate --config relay.yaml
//
//	# Inspect a running relay
//	relay diag metrics
//	relay diag hanging --addr 10.0.0.5:8080
//	relay diag request 3f2a...
//
//	# Show version information
//	relay version
package main

import (
	"fmt"
	"os"

	"mercator-hq/relay/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
