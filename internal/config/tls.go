package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// SetupTLSConfig builds a *tls.Config for the optional transport-hardening
// listener/dialer kvs-server/kvs-client can opt into with
// --tls-cert/--tls-key/--tls-ca. Since client authentication is an explicit
// spec Non-goal, a server-side CA only verifies a client cert if one is
// presented (VerifyClientCertIfGiven) rather than requiring one.
func SetupTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	var err error
	tlsConfig := &tls.Config{}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		// load the certificate/key pair into the tls config
		tlsConfig.Certificates = make([]tls.Certificate, 1)
		tlsConfig.Certificates[0], err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
	}
	if cfg.CAFile != "" {
		b, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}

		// parse root certs
		ca := x509.NewCertPool()
		if ok := ca.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("failed to parse root certificate: %q", cfg.CAFile)
		}

		if cfg.Server {
			tlsConfig.ClientCAs = ca
			tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		} else {
			tlsConfig.RootCAs = ca
		}
		tlsConfig.ServerName = cfg.ServerAddress
	}
	return tlsConfig, nil
}

// TLSConfig describes one side (client or server) of an optional TLS
// handshake.
type TLSConfig struct {
	CertFile      string
	KeyFile       string
	CAFile        string
	ServerAddress string
	Server        bool
}
