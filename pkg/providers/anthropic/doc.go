// Package anthropic implements the adapter for the Anthropic Messages API.
//
// # Translation
//
// ToUpstreamRequest converts the relay's neutral request: system messages
// are joined into the system field, tool messages become tool_result
// blocks in a user turn, assistant tool calls become tool_use blocks, and
// consecutive turns of the same role are merged. max_tokens is required by
// the upstream and defaults to the provider's DefaultMaxTokens, then to
// DefaultMaxTokens.
//
// # Streaming
//
// The upstream stream is a sequence of typed events. StreamTranslator maps
// them onto neutral chunks:
//
//	message_start        role chunk; id, model and input tokens remembered
//	content_block_start  tool call header (tool_use blocks only)
//	content_block_delta  text delta or partial tool arguments
//	message_delta        finish reason and usage
//	message_stop         end of stream
//	error                *providers.StreamError (e.g. overloaded_error)
//
// ping and content_block_stop carry nothing. A body that ends before
// message_stop is reported as a StreamError.
package anthropic
