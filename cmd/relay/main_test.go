package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const testConfig = `
proxy:
  listen_address: "127.0.0.1:0"

providers:
  anthropic:
    base_url: "https://api.anthropic.com"
    api_key: "test-key-123"
  local:
    type: openai
    base_url: "http://localhost:11434/v1"

routing:
  default_provider: local

timeouts:
  base_timeout: 2m
  inactivity_timeout: 30s

diagnostics:
  enabled: true

telemetry:
  logging:
    level: "error"
`
