package tls

import (
	"crypto/tls"
	"fmt"

	"mercator-hq/relay/pkg/config"
)

// ServerConfig builds the listener TLS configuration. Certificates are
// served by reloader so renewals take effect without a restart. It
// returns nil when TLS is disabled.
func ServerConfig(cfg config.TLSConfig, reloader *CertReloader) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if reloader == nil {
		return nil, fmt.Errorf("tls enabled without a certificate")
	}
	version, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	// #nosec G402 - MinVersion is 1.2 or higher
	return &tls.Config{
		MinVersion:     version,
		GetCertificate: reloader.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}, nil
}

// ParseVersion converts "1.2" or "1.3" to a crypto/tls version. The empty
// string selects TLS 1.3.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "1.3", "":
		return tls.VersionTLS13, nil
	case "1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported tls min_version %q: must be 1.2 or 1.3", v)
	}
}
