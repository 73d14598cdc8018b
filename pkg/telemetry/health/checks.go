package health

import (
	"context"
	"fmt"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"
)

// ConfigCheck fails until a configuration has been loaded.
func ConfigCheck(get func() *config.Config) CheckFunc {
	return func(ctx context.Context) error {
		if get() == nil {
			return fmt.Errorf("configuration not loaded")
		}
		return nil
	}
}

// ProvidersCheck fails when no upstream provider is configured.
func ProvidersCheck(names func() []string) CheckFunc {
	return func(ctx context.Context) error {
		if len(names()) == 0 {
			return fmt.Errorf("no providers configured")
		}
		return nil
	}
}

// RegistryCheck fails when the request registry reports more hanging
// requests or leaked resources than allowed. A negative limit disables
// that half of the check.
func RegistryCheck(reg *diagnostics.Registry, maxHanging, maxLeaks int) CheckFunc {
	return func(ctx context.Context) error {
		if maxHanging >= 0 {
			if n := len(reg.DetectHanging()); n > maxHanging {
				return fmt.Errorf("%d hanging requests exceed limit %d", n, maxHanging)
			}
		}
		if maxLeaks >= 0 {
			if n := len(reg.DetectLeaks()); n > maxLeaks {
				return fmt.Errorf("%d leaked resources exceed limit %d", n, maxLeaks)
			}
		}
		return nil
	}
}
