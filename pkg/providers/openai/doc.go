// Package openai implements the adapter for OpenAI-compatible upstreams.
//
// Requests already in the relay's neutral form map almost one to one onto
// the chat completions API, so this adapter mostly passes fields through.
// Streaming requests ask for a final usage chunk (stream_options), and the
// upstream's "data: [DONE]" sentinel ends the chunk channel.
//
// The same adapter serves self-hosted upstreams (vLLM, Ollama, LM Studio):
// configure a base_url and leave api_key empty.
//
//	p, err := openai.NewProvider(providers.ProviderConfig{
//	    Name:    "local",
//	    BaseURL: "http://localhost:11434/v1",
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	chunks, err := p.StreamCompletion(ctx, req)
package openai
