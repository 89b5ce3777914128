// Package tlsconfig builds the mutual TLS configurations used between
// ecsexecd and ecsexecctl. Both sides trust a single private CA; a client's
// certificate also carries its role (operator or viewer) in the OU, which
// internal/auth reads once the handshake has verified it.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var ErrInvalidCA = errors.New("no certificates found in CA file")

// Config names the PEM files for one end of the connection.
type Config struct {
	// CertPath and KeyPath hold this end's certificate and private key.
	CertPath string
	KeyPath  string

	// CACertPath holds the CA that signed the other end's certificate.
	CACertPath string

	// ServerName is the daemon host name ecsexecctl expects in the server
	// certificate. Unused by the daemon.
	ServerName string

	// Server is set by ecsexecd, which then refuses clients without a
	// certificate signed by the CA.
	Server bool
}

// SetupTLS returns a TLS 1.3 config for ecsexecd (config.Server) or for
// ecsexecctl.
func SetupTLS(config *Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(config.CertPath, config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	pool, err := loadCAPool(config.CACertPath)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS13,
		ServerName:   config.ServerName,
		Certificates: []tls.Certificate{cert},
	}

	if config.Server {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = pool
	} else {
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse CA certificate %s: %w", path, ErrInvalidCA)
	}

	return pool, nil
}
