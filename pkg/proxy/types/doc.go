// Package types defines the OpenAI-compatible request and response bodies
// the relay accepts and returns.
//
// Clients use standard OpenAI SDKs unchanged:
//
//	from openai import OpenAI
//	client = OpenAI(base_url="http://localhost:8080/v1")
//	stream = client.chat.completions.create(
//	    model="claude-3-5-sonnet-latest",
//	    messages=[{"role": "user", "content": "Hello!"}],
//	    stream=True,
//	)
//
// Error bodies are produced by pkg/faults.
package types
