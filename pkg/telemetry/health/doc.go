// Package health provides health check endpoints for Mercator Relay.
//
// # Endpoints
//
//   - /health: liveness, answers 200 while the process serves HTTP
//   - /ready: readiness, runs every registered check and answers 503 when
//     one fails or the relay is draining for shutdown
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("config", health.ConfigCheck(config.GetConfig))
//	checker.RegisterCheck("lifecycle", health.RegistryCheck(registry, 10, 10))
//	checker.Register(mux, "/health", "/ready", health.VersionInfo{Version: version})
//
// During shutdown call SetDraining(true) before closing listeners so load
// balancers stop routing new requests while in-flight streams finish.
package health
