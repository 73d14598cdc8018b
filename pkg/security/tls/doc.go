// Package tls serves the relay's listener certificate.
//
// CertReloader loads a PEM certificate and key, validates the leaf against
// the current time, and reloads the pair when either file changes on disk:
//
//	reloader, err := tls.NewCertReloader(cfg.CertFile, cfg.KeyFile, nil, logger)
//	tlsConfig, err := tls.ServerConfig(cfg, reloader)
//	go reloader.Watch(ctx)
//
// Only TLS 1.2 and 1.3 are accepted. Go's default cipher suites are used.
package tls
