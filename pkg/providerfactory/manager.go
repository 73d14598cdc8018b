package providerfactory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

// Manager owns the configured providers and routes models to them.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu              sync.RWMutex
	providers       map[string]providers.Provider
	prefixes        []route
	defaultProvider string

	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type route struct {
	prefix   string
	provider string
}

// NewManager creates an empty manager.
func NewManager(opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		providers: make(map[string]providers.Provider),
		opts:      opts,
		logger:    slog.Default().With("component", "providerfactory"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NewManagerFromConfig builds every configured provider and installs the
// routing table.
func NewManagerFromConfig(cfg *config.Config, opts Options) (*Manager, error) {
	m := NewManager(opts)

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := m.AddProvider(ProviderConfig(name, cfg.Providers[name], opts)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.Close()
		return nil, err
	}

	if err := m.SetRoutes(cfg.Routing); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// AddProvider creates a provider and adds it. A provider with the same
// name is replaced and closed.
func (m *Manager) AddProvider(config providers.ProviderConfig) error {
	if config.WrapTransport == nil {
		config.WrapTransport = m.opts.WrapTransport
	}
	if config.Observer == nil {
		config.Observer = m.opts.Observer
	}

	var (
		provider providers.Provider
		err      error
	)
	if m.opts.DisableHealthChecks {
		provider, err = NewProvider(config)
	} else {
		provider, err = NewProviderWithHealthCheck(m.ctx, config)
	}
	if err != nil {
		return fmt.Errorf("failed to add provider %q: %w", config.Name, err)
	}
	m.Register(provider)
	return nil
}

// Register adds an already constructed provider under its name.
func (m *Manager) Register(provider providers.Provider) {
	m.mu.Lock()
	existing, replaced := m.providers[provider.Name()]
	m.providers[provider.Name()] = provider
	total := len(m.providers)
	m.mu.Unlock()

	if replaced {
		m.logger.Warn("replacing existing provider", "name", provider.Name())
		existing.Close()
	}
	m.logger.Info("provider registered",
		"name", provider.Name(),
		"type", provider.Type(),
		"total_providers", total,
	)
}

// RemoveProvider closes and removes a provider.
func (m *Manager) RemoveProvider(name string) error {
	m.mu.Lock()
	provider, ok := m.providers[name]
	delete(m.providers, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("provider %q not found", name)
	}
	if err := provider.Close(); err != nil {
		m.logger.Error("error closing provider", "name", name, "error", err)
	}
	return nil
}

// Provider returns a provider by name.
func (m *Manager) Provider(name string) (providers.Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	return p, ok
}

// Names returns the provider names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetRoutes installs the routing table. Every named provider must be
// registered.
func (m *Manager) SetRoutes(cfg config.RoutingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.DefaultProvider != "" {
		if _, ok := m.providers[cfg.DefaultProvider]; !ok {
			return fmt.Errorf("default provider %q is not configured", cfg.DefaultProvider)
		}
	}
	routes := make([]route, 0, len(cfg.ModelPrefixes))
	for prefix, name := range cfg.ModelPrefixes {
		if _, ok := m.providers[name]; !ok {
			return fmt.Errorf("model prefix %q routes to unknown provider %q", prefix, name)
		}
		routes = append(routes, route{prefix: prefix, provider: name})
	}
	// Longest prefix first; ties broken by name for a stable order.
	sort.Slice(routes, func(i, j int) bool {
		if len(routes[i].prefix) != len(routes[j].prefix) {
			return len(routes[i].prefix) > len(routes[j].prefix)
		}
		return routes[i].prefix < routes[j].prefix
	})

	m.prefixes = routes
	m.defaultProvider = cfg.DefaultProvider
	return nil
}

// Route returns the provider serving model: the longest matching prefix,
// else the default provider. It returns a *providers.ModelNotFoundError
// when neither applies.
func (m *Manager) Route(model string) (providers.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := m.defaultProvider
	for _, r := range m.prefixes {
		if strings.HasPrefix(model, r.prefix) {
			name = r.provider
			break
		}
	}
	provider, ok := m.providers[name]
	if !ok {
		return nil, &providers.ModelNotFoundError{Model: model}
	}
	if !provider.IsHealthy() {
		m.logger.Warn("routing to unhealthy provider", "provider", name, "model", model)
	}
	return provider, nil
}

// HealthSummary is the health of every provider.
type HealthSummary struct {
	Total     int
	Healthy   int
	Unhealthy int
	Details   map[string]providers.ProviderHealth
}

// HealthSummary returns the health of every provider.
func (m *Manager) HealthSummary() HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := HealthSummary{
		Total:   len(m.providers),
		Details: make(map[string]providers.ProviderHealth, len(m.providers)),
	}
	for name, provider := range m.providers {
		health := provider.Health()
		summary.Details[name] = health
		if health.IsHealthy {
			summary.Healthy++
		}
	}
	summary.Unhealthy = summary.Total - summary.Healthy
	return summary
}

// Close stops health checks and closes every provider.
func (m *Manager) Close() error {
	m.cancel()

	m.mu.Lock()
	all := m.providers
	m.providers = make(map[string]providers.Provider)
	m.prefixes = nil
	m.mu.Unlock()

	var errs []error
	for name, provider := range all {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}
	m.logger.Info("provider manager closed", "providers", len(all))
	return errors.Join(errs...)
}
