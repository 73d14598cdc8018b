// Package providertest provides an in-memory providers.Provider for tests
// that need exact control over upstream timing.
package providertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"mercator-hq/relay/pkg/providers"
)

// Provider is a scripted providers.Provider. Set the exported fields before
// the first call; they are read without locking.
type Provider struct {
	// Response is returned by SendCompletion.
	Response *providers.CompletionResponse

	// SendErr fails SendCompletion, StartErr fails StreamCompletion
	// before any chunk.
	SendErr  error
	StartErr error

	// Delay is waited before SendCompletion answers. Cancelling the
	// context ends the wait with the context error.
	Delay time.Duration

	// Chunks are streamed in order, ChunkDelay apart.
	Chunks     []*providers.StreamChunk
	ChunkDelay time.Duration

	// Hold keeps the stream open after the last chunk until the context
	// is cancelled.
	Hold bool

	name string

	mu        sync.Mutex
	healthy   bool
	requests  []*providers.CompletionRequest
	closed    bool
	cancelled chan struct{}
	once      sync.Once
}

var _ providers.Provider = (*Provider)(nil)

// New creates a healthy provider called name.
func New(name string) *Provider {
	return &Provider{
		name:      name,
		healthy:   true,
		cancelled: make(chan struct{}),
	}
}

// SetHealthy sets the reported health.
func (p *Provider) SetHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// Requests returns the requests received so far.
func (p *Provider) Requests() []*providers.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*providers.CompletionRequest(nil), p.requests...)
}

// Cancelled is closed the first time a call observes its context being
// cancelled.
func (p *Provider) Cancelled() <-chan struct{} {
	return p.cancelled
}

// Closed reports whether Close was called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider) record(req *providers.CompletionRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

func (p *Provider) abandoned(ctx context.Context) error {
	p.once.Do(func() { close(p.cancelled) })
	return &providers.TimeoutError{Provider: p.name, Cause: ctx.Err()}
}

// SendCompletion returns Response or SendErr after Delay.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.record(req)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, p.abandoned(ctx)
		}
	}
	if p.SendErr != nil {
		return nil, p.SendErr
	}
	if p.Response == nil {
		return nil, errors.New("providertest: no response scripted")
	}
	resp := *p.Response
	return &resp, nil
}

// StreamCompletion streams Chunks.
func (p *Provider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	p.record(req)
	if p.StartErr != nil {
		return nil, p.StartErr
	}

	chunks := make(chan *providers.StreamChunk)
	go func() {
		defer close(chunks)
		for i, c := range p.Chunks {
			if i > 0 && p.ChunkDelay > 0 {
				select {
				case <-time.After(p.ChunkDelay):
				case <-ctx.Done():
					p.abandoned(ctx)
					return
				}
			}
			select {
			case chunks <- c:
			case <-ctx.Done():
				p.abandoned(ctx)
				return
			}
		}
		if p.Hold {
			<-ctx.Done()
			p.abandoned(ctx)
		}
	}()
	return chunks, nil
}

// HealthCheck fails when the provider is unhealthy.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if !p.IsHealthy() {
		return errors.New("providertest: unhealthy")
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Type returns "fake".
func (p *Provider) Type() string { return "fake" }

// IsHealthy returns the health set by SetHealthy.
func (p *Provider) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

// Health returns health details.
func (p *Provider) Health() providers.ProviderHealth {
	return providers.ProviderHealth{IsHealthy: p.IsHealthy()}
}

// Close marks the provider closed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// TextChunks returns one chunk per delta followed by a stop chunk with
// usage.
func TextChunks(model string, deltas ...string) []*providers.StreamChunk {
	chunks := make([]*providers.StreamChunk, 0, len(deltas)+1)
	for i, d := range deltas {
		c := &providers.StreamChunk{ID: "chatcmpl-test", Model: model, Delta: d}
		if i == 0 {
			c.Role = providers.RoleAssistant
		}
		chunks = append(chunks, c)
	}
	return append(chunks, &providers.StreamChunk{
		ID:           "chatcmpl-test",
		Model:        model,
		FinishReason: providers.FinishReasonStop,
		Usage:        &providers.TokenUsage{PromptTokens: 5, CompletionTokens: len(deltas), TotalTokens: 5 + len(deltas)},
	})
}
