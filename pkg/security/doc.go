// Package security groups the relay's client-facing security.
//
// Subpackages:
//   - auth: client API key authentication
//   - tls: listener certificates with reload on renewal
package security
