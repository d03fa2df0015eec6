// Package tls builds the outbound HTTP client used for the identity platform
// and the mail API, optionally trusting an extra CA bundle.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ClientConfig returns a TLS 1.2+ client configuration. When caFile is set,
// its PEM certificates are added to the system roots.
func ClientConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	pemData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("no PEM certificates found in %s", caFile)
	}

	cfg.RootCAs = pool
	return cfg, nil
}

// NewHTTPClient returns an HTTP client using ClientConfig(caFile). A zero
// timeout leaves request deadlines to the caller's context.
func NewHTTPClient(caFile string, timeout time.Duration) (*http.Client, error) {
	tlsConfig, err := ClientConfig(caFile)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
