package handlers

import (
	"time"

	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/providers"
)

// Router selects the provider for a model. *providerfactory.Manager
// implements it.
type Router interface {
	Route(model string) (providers.Provider, error)
}

// HealthReporter reports provider health. *providerfactory.Manager
// implements it.
type HealthReporter interface {
	HealthSummary() providerfactory.HealthSummary
}

// Recorder receives per-request metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordRequest(provider, model, status string, duration time.Duration)
	RecordTokens(provider, model string, promptTokens, completionTokens int)
}
