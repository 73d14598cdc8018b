package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/security/tls"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay",
	Long: `Start the relay with the specified configuration.

The relay listens on the configured address and forwards chat completion
requests to the configured providers. Timeouts, client keys and routes are
reloaded when the configuration file changes; other settings need a restart.

On SIGINT or SIGTERM the relay stops accepting requests, fails readiness,
waits up to proxy.shutdown_timeout for in-flight requests and then terminates
whatever is still running. A second signal exits immediately.

Examples:
  # Start with default config
  relay run

  # Start with custom config
  relay run --config /etc/relay/relay.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8080

  # Validate config and build every component without serving
  relay run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build the relay without starting it")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
		Writer:        os.Stdout,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	}

	regOpts := diagnostics.Options{
		GracePeriod: cfg.Diagnostics.GracePeriod,
		Thresholds:  cfg.Diagnostics.Thresholds(),
		Logger:      logger.With("component", "diagnostics"),
	}
	if collector != nil {
		regOpts.Recorder = collector
	}
	registry := diagnostics.Init(regOpts)

	var sweeper *diagnostics.Sweeper
	if cfg.Diagnostics.Enabled {
		sweeper = diagnostics.NewSweeper(registry, cfg.Diagnostics.SweepSchedule, cfg.Diagnostics.AlertThresholds())
	}

	factoryOpts := providerfactory.Options{
		WrapTransport:       tracer.Transport,
		DisableHealthChecks: runFlags.dryRun,
	}
	if collector != nil {
		factoryOpts.Observer = collector
	}
	manager, err := providerfactory.NewManagerFromConfig(cfg, factoryOpts)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer manager.Close()
	if len(manager.Names()) == 0 {
		logger.Warn("no providers configured")
	}

	var certs *tls.CertReloader
	if cfg.Security.TLS.Enabled {
		certs, err = tls.NewCertReloader(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile, nil, logger.With("component", "tls"))
		if err != nil {
			return cli.NewConfigError(cfgFile, err)
		}
	}

	srv, err := server.New(server.Options{
		Config:    cfg,
		Manager:   manager,
		Registry:  registry,
		Sweeper:   sweeper,
		Collector: collector,
		Tracer:    tracer,
		Certs:     certs,
		Version:   versionInfo(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if runFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%d providers)\n", len(manager.Names()))
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context(), func() {
		logger.Error("second signal received, exiting immediately")
		os.Exit(cli.ExitError)
	})
	defer stop()

	printBanner(cmd, cfg, manager.Names())
	return serve(ctx, logger, srv, sweeper, certs)
}

// serve runs the server and its background workers until ctx is cancelled
// or one of them fails.
func serve(ctx context.Context, logger *slog.Logger, srv *server.Server, sweeper *diagnostics.Sweeper, certs *tls.CertReloader) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Run(ctx) })

	if sweeper != nil {
		g.Go(func() error { return sweeper.Run(ctx) })
	}

	if !runFlags.noWatch {
		watcher := config.NewWatcher(cfgFile, srv.ApplyConfig)
		g.Go(func() error {
			if err := watcher.Watch(ctx); err != nil {
				// Serving continues without reloads.
				logger.Warn("configuration watcher stopped", "error", err)
			}
			return nil
		})
	}

	if certs != nil {
		g.Go(func() error {
			if err := certs.Watch(ctx); err != nil {
				logger.Warn("certificate watcher stopped", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewCommandError("run", err)
	}
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config, providers []string) {
	out := cmd.OutOrStdout()
	scheme := "http"
	if cfg.Security.TLS.Enabled {
		scheme = "https"
	}
	base := scheme + "://" + cfg.Proxy.ListenAddress

	fmt.Fprintf(out, "Relay %s\n", Version)
	fmt.Fprintf(out, "✓ Providers: %v\n", providers)
	fmt.Fprintf(out, "✓ Chat completions: %s%s\n", base, server.ChatCompletionsPath)
	fmt.Fprintf(out, "✓ Health: %s%s\n", base, cfg.Telemetry.Health.LivenessPath)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics: %s%s\n", base, cfg.Telemetry.Metrics.Path)
	}
	if cfg.Diagnostics.Enabled {
		fmt.Fprintf(out, "✓ Diagnostics: %s%s\n", base, cfg.Diagnostics.PathPrefix)
	}
	fmt.Fprintln(out)
}
