package util

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/leonunix/docquery/internal/config"
)

// idleConnsPerHost covers parallel bulk workers hitting a single node.
const idleConnsPerHost = 32

// NewHTTPClient returns a client for the cluster. The transport is a clone
// of http.DefaultTransport with a larger idle pool; TLS verification is
// adjusted only when tc asks for it.
func NewHTTPClient(tc config.TLSConfig, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = idleConnsPerHost

	tlsConfig, err := clientTLS(tc)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		tr.TLSClientConfig = tlsConfig
	}
	return &http.Client{Timeout: timeout, Transport: tr}, nil
}

// clientTLS returns nil when the system defaults apply.
func clientTLS(tc config.TLSConfig) (*tls.Config, error) {
	if !tc.SkipVerify && tc.CACert == "" {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: tc.SkipVerify,
	}
	if tc.CACert == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(tc.CACert)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate %s: %w", tc.CACert, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", tc.CACert)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
