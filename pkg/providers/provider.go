package providers

import "context"

// Provider is implemented by every upstream adapter.
//
// All methods accept a context and must return promptly once it is
// cancelled. The relay cancels it when the owning request terminates, for
// whatever reason.
type Provider interface {
	// SendCompletion performs a non-streaming completion.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion starts a streaming completion. The returned channel
	// yields chunks until it is closed. A chunk with Error set is the last
	// one sent. If ctx is cancelled the channel is closed without an error
	// chunk.
	//
	//	chunks, err := provider.StreamCompletion(ctx, req)
	//	if err != nil {
	//	    return err
	//	}
	//	for chunk := range chunks {
	//	    if chunk.Error != nil {
	//	        return chunk.Error
	//	    }
	//	    fmt.Print(chunk.Delta)
	//	}
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)

	// HealthCheck probes the upstream.
	HealthCheck(ctx context.Context) error

	// Name returns the configured provider name.
	Name() string

	// Type returns the adapter type.
	Type() string

	// IsHealthy reports the last known health.
	IsHealthy() bool

	// Health returns detailed health information.
	Health() ProviderHealth

	// Close releases connections and stops background checks.
	Close() error
}

// StreamReader reads one upstream event stream.
type StreamReader interface {
	// Read returns the next chunk, or io.EOF at the end of the stream.
	Read(ctx context.Context) (*StreamChunk, error)

	// Close releases the stream.
	Close() error
}

// Pump reads r until it ends and sends every chunk on a new channel, which
// is closed afterwards. A read error is sent as a final chunk. Cancelling
// ctx stops the pump without an error chunk.
func Pump(ctx context.Context, r StreamReader, buffer int) <-chan *StreamChunk {
	chunks := make(chan *StreamChunk, buffer)
	go func() {
		defer close(chunks)
		defer r.Close()

		for {
			chunk, err := r.Read(ctx)
			if err != nil {
				if ctx.Err() != nil || isEOF(err) {
					return
				}
				select {
				case chunks <- &StreamChunk{Error: err}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks
}
