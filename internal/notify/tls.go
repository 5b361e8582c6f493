// file: internal/notify/tls.go

package notify

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"cover-display/config"
	"cover-display/internal/logger"
)

// createTLSConfig builds the client TLS settings. It returns nil when TLS is
// disabled.
func createTLSConfig(cfg config.TLSConfig, log *logger.Logger) (*tls.Config, error) {
	if !cfg.Enable {
		return nil, nil
	}

	log.Info("enabling TLS connection", "insecure", cfg.Insecure)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		log.Info("loaded TLS client certificate", "certFile", cfg.CertFile)
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
		log.Info("loaded TLS CA certificate", "caFile", cfg.CAFile)
	}

	return tlsConfig, nil
}
