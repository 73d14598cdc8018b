// Package faults defines the error taxonomy shared by every layer of the relay.
//
// A Fault carries a Kind (validation, unauthorized, rate limit, timeout,
// upstream, internal), the HTTP status it maps to, and enough detail to render
// an OpenAI-compatible error body:
//
//	{"error":{"message":"...","type":"gateway_timeout","code":"timeout_inactivity","request_id":"..."}}
//
// Faults are plain errors. Callers build them with the constructors in this
// package and recover them with errors.As or From:
//
//	f := faults.From(err)
//	body := f.Response(requestID)
//
// Upstream faults keep the provider's status code so the relay can remap it
// (5xx becomes 502, 429 stays 429, 401/403 become authentication errors).
package faults
