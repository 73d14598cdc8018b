package diagnostics

import "sync"

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Init replaces the process registry with one built from opts and returns it.
func Init(opts Options) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = New(opts)
	return defaultRegistry
}

// Default returns the process registry, creating one with default options
// on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = New(Options{})
	}
	return defaultRegistry
}

// Reset discards the process registry. The next Default call starts fresh.
// It is intended for tests.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = nil
}
