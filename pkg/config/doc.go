// Package config provides configuration management for Mercator Relay.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - RELAY_PROVIDERS_ANTHROPIC_API_KEY overrides providers.anthropic.api_key
//   - RELAY_TIMEOUTS_INACTIVITY_MS overrides timeouts.inactivity_timeout, in milliseconds
//
// Environment variables always take precedence over file-based configuration.
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify. Each valid edit
// replaces the global configuration and is handed to OnReload; the server
// uses it to publish new timeouts through a TimeoutSource. Requests already
// in flight keep the timeouts they started with.
//
// # Example Configuration
//
//	proxy:
//	  listen_address: "127.0.0.1:8080"
//
//	providers:
//	  anthropic:
//	    base_url: "https://api.anthropic.com"
//	    api_key: "${ANTHROPIC_API_KEY}"
//	  openai:
//	    base_url: "https://api.openai.com/v1"
//
//	routing:
//	  default_provider: openai
//	  model_prefixes:
//	    claude-: anthropic
//
//	timeouts:
//	  base_timeout: 5m
//	  streaming_timeout: 4m
//	  max_timeout: 10m
//	  inactivity_timeout: 60s
//
//	diagnostics:
//	  enabled: true
//	  sweep_schedule: "@every 30s"
package config
