package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/limits/ratelimit"
	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/security/auth"
	relaytls "mercator-hq/relay/pkg/security/tls"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

const (
	// healthCheckTimeout bounds each readiness check.
	healthCheckTimeout = 5 * time.Second

	// forceCleanupTimeout bounds the teardown of requests still live when
	// the listener has shut down.
	forceCleanupTimeout = 10 * time.Second

	// maxHangingForReady fails readiness when this many requests hang.
	maxHangingForReady = 100
)

// Options wires the server's collaborators. Config and Manager are
// required. Nil telemetry components are left out of the request path.
type Options struct {
	Config   *config.Config
	Manager  *providerfactory.Manager
	Registry *diagnostics.Registry
	Sweeper  *diagnostics.Sweeper

	Collector *metrics.Collector
	Tracer    *tracing.Tracer

	// Certs serves the listener certificate when TLS is enabled.
	Certs *relaytls.CertReloader

	Version health.VersionInfo
	Logger  *slog.Logger
}

// Server is the relay's HTTP server.
type Server struct {
	cfg       atomic.Pointer[config.Config]
	logger    *slog.Logger
	manager   *providerfactory.Manager
	registry  *diagnostics.Registry
	sweeper   *diagnostics.Sweeper
	collector *metrics.Collector
	tracer    *tracing.Tracer
	certs     *relaytls.CertReloader
	version   health.VersionInfo

	health   *health.Checker
	timeouts *config.TimeoutSource
	keys     *auth.APIKeyValidator
	limiter  *ratelimit.Limiter
	handler  http.Handler

	mu      sync.Mutex
	running bool
}

// New assembles a server. The handler is built once; configuration
// reloads go through ApplyConfig.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Manager == nil {
		return nil, errors.New("server: provider manager is required")
	}
	if opts.Config.Security.TLS.Enabled && opts.Certs == nil {
		return nil, errors.New("server: tls enabled without a certificate reloader")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = diagnostics.Default()
	}

	cfg := opts.Config
	s := &Server{
		logger:    opts.Logger.With("component", "server"),
		manager:   opts.Manager,
		registry:  opts.Registry,
		sweeper:   opts.Sweeper,
		collector: opts.Collector,
		tracer:    opts.Tracer,
		certs:     opts.Certs,
		version:   opts.Version,
		health:    health.New(healthCheckTimeout),
		timeouts:  config.NewTimeoutSource(cfg),
		keys:      auth.NewAPIKeyValidator(auth.KeysFromConfig(cfg.Security.Authentication)),
	}
	s.cfg.Store(cfg)

	if rl := cfg.Limits.RateLimit; rl.Enabled {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{
			Requests:      rl.Requests,
			Window:        rl.Window,
			MaxConcurrent: rl.MaxConcurrent,
		}, s.registry.Clock())
	}

	s.health.RegisterCheck("config", health.ConfigCheck(s.Config))
	s.health.RegisterCheck("providers", health.ProvidersCheck(s.manager.Names))
	s.health.RegisterCheck("requests", health.RegistryCheck(s.registry, maxHangingForReady, -1))

	s.handler = s.routes(opts.Logger)
	return s, nil
}

// Config returns the configuration currently in effect.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the server's health checker.
func (s *Server) Health() *health.Checker {
	return s.health
}

// ApplyConfig applies a reloaded configuration. Timeouts, client keys and
// model routes change in place; listener, TLS, rate limit and provider
// settings need a restart. New timeouts apply to new requests only.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.timeouts.Update(cfg)
	s.keys.Replace(auth.KeysFromConfig(cfg.Security.Authentication))
	if err := s.manager.SetRoutes(cfg.Routing); err != nil {
		s.logger.Error("routing reload failed, keeping previous routes", "error", err)
	}
	s.cfg.Store(cfg)
	s.logger.Info("configuration applied",
		"api_keys", s.keys.Len(),
		"base_timeout", cfg.Timeouts.Base,
	)
}

// Run listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Config().Proxy.ListenAddress
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Shutdown marks the server
// draining so readiness fails, waits up to the shutdown timeout for
// in-flight requests, then terminates whatever is still live through the
// request registry, which also covers hijacked WebSocket connections.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	cfg := s.Config()
	tlsConfig, err := relaytls.ServerConfig(cfg.Security.TLS, s.certs)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to configure TLS: %w", err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       cfg.Proxy.ReadTimeout,
		ReadHeaderTimeout: cfg.Proxy.ReadTimeout,
		WriteTimeout:      cfg.Proxy.WriteTimeout,
		IdleTimeout:       cfg.Proxy.IdleTimeout,
		MaxHeaderBytes:    cfg.Proxy.MaxHeaderBytes,
		TLSConfig:         tlsConfig,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.health.SetDraining(false)
	s.logger.Info("relay listening",
		"address", ln.Addr().String(),
		"tls_enabled", tlsConfig != nil,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	return s.shutdown(srv, errCh, cfg.Proxy.ShutdownTimeout)
}

func (s *Server) shutdown(srv *http.Server, errCh <-chan error, timeout time.Duration) error {
	s.health.SetDraining(true)
	s.logger.Info("initiating graceful shutdown", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), forceCleanupTimeout)
	defer cancelCleanup()
	if n := s.registry.ForceCleanup(cleanupCtx); n > 0 {
		s.logger.Warn("terminated requests still live at shutdown", "count", n)
	}

	if shutdownErr != nil {
		_ = srv.Close()
	}
	<-errCh

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown error: %w", shutdownErr)
	}
	s.logger.Info("relay stopped")
	return nil
}
