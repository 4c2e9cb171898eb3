// Package security holds the transport security profile of a datanode and
// turns it into tls.Config values for gRPC clients and servers.
//
// A Config is plain data. Validation and TLS construction are separate steps
// so that a client can fail fast on broken configuration before any network
// activity happens.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// TestServerName is the authority presented certificates are verified
// against when UseTestCert is set. Test certificates are issued for this
// name so that a client can dial an arbitrary address and still pass
// verification.
const TestServerName = "localhost"

// Config is the transport security profile of one node.
//
// With Enabled false every other field is ignored and connections are
// plaintext. With Enabled true the certificate and key files must exist and
// be readable before a channel is built.
type Config struct {
	// Enabled switches TLS on for every channel built from this profile.
	Enabled bool

	// CertificateFile is the path to the node's PEM encoded certificate
	// chain, presented to peers during the handshake.
	CertificateFile string

	// PrivateKeyFile is the path to the PEM encoded private key matching
	// CertificateFile.
	PrivateKeyFile string

	// RequireClientAuth makes a server built from this profile demand and
	// verify a client certificate (mutual TLS).
	RequireClientAuth bool

	// UseTestCert pins the expected server name to TestServerName instead
	// of the dialed host. It exists for tests that dial ephemeral
	// addresses with certificates issued for "localhost" and must never be
	// set in production configurations.
	UseTestCert bool
}

// Validate checks that the profile can produce TLS material without reading
// or parsing any of it. It returns nil for a disabled profile. For an
// enabled profile it confirms that both key material paths are set and that
// the files exist and are readable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertificateFile == "" {
		return ErrCertificateUnset
	}
	if c.PrivateKeyFile == "" {
		return ErrPrivateKeyUnset
	}
	if err := readable(c.CertificateFile); err != nil {
		return fmt.Errorf("security: certificate file: %w", err)
	}
	if err := readable(c.PrivateKeyFile); err != nil {
		return fmt.Errorf("security: private key file: %w", err)
	}
	return nil
}

func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// ClientTLSConfig builds the tls.Config a replication client uses to dial a
// peer. The node's own key pair is always presented so the connection works
// against servers that demand client authentication.
//
// trustAnchor, when non nil, becomes the only root the peer's certificate
// may chain to; a nil trustAnchor falls back to the system roots. With
// UseTestCert set the expected server name is pinned to TestServerName.
func (c *Config) ClientTLSConfig(trustAnchor *x509.Certificate) (*tls.Config, error) {
	if !c.Enabled {
		return nil, ErrDisabled
	}
	pair, err := tls.LoadX509KeyPair(c.CertificateFile, c.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("security: load key pair: %w", err)
	}
	conf := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	if trustAnchor != nil {
		pool := x509.NewCertPool()
		pool.AddCert(trustAnchor)
		conf.RootCAs = pool
	}
	if c.UseTestCert {
		conf.ServerName = TestServerName
	}
	return conf, nil
}

// ServerTLSConfig builds the tls.Config a replication server listens with.
// clientCA, when non nil, is the root client certificates must chain to; it
// is only consulted when RequireClientAuth is set.
func (c *Config) ServerTLSConfig(clientCA *x509.Certificate) (*tls.Config, error) {
	if !c.Enabled {
		return nil, ErrDisabled
	}
	pair, err := tls.LoadX509KeyPair(c.CertificateFile, c.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("security: load key pair: %w", err)
	}
	conf := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	if c.RequireClientAuth {
		conf.ClientAuth = tls.RequireAndVerifyClientCert
		if clientCA != nil {
			pool := x509.NewCertPool()
			pool.AddCert(clientCA)
			conf.ClientCAs = pool
		}
	}
	return conf, nil
}

// LoadCertificate reads a single PEM encoded X.509 certificate from path.
// It is used for trust anchors, which travel as bare certificate files
// rather than pools.
func LoadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read certificate: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("security: %s: no CERTIFICATE block found", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("security: parse certificate: %w", err)
	}
	return cert, nil
}
