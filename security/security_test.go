package security

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Reidddddd/ozone/internal/testcert"
)

func TestValidateDisabled(t *testing.T) {
	conf := &Config{}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate on disabled config failed: %v", err)
	}
}

func TestValidateUnsetPaths(t *testing.T) {
	t.Run("certificate", func(t *testing.T) {
		conf := &Config{Enabled: true, PrivateKeyFile: "key.pem"}
		if err := conf.Validate(); !errors.Is(err, ErrCertificateUnset) {
			t.Fatalf("Validate error = %v, want ErrCertificateUnset", err)
		}
	})
	t.Run("private key", func(t *testing.T) {
		conf := &Config{Enabled: true, CertificateFile: "cert.pem"}
		if err := conf.Validate(); !errors.Is(err, ErrPrivateKeyUnset) {
			t.Fatalf("Validate error = %v, want ErrPrivateKeyUnset", err)
		}
	})
}

func TestValidateMissingFiles(t *testing.T) {
	dir := t.TempDir()
	ca := testcert.NewAuthority(t)
	certFile, keyFile := ca.Issue(t, dir, "node")

	t.Run("certificate absent", func(t *testing.T) {
		conf := &Config{
			Enabled:         true,
			CertificateFile: filepath.Join(dir, "nope.crt"),
			PrivateKeyFile:  keyFile,
		}
		if err := conf.Validate(); err == nil {
			t.Fatal("Validate accepted a missing certificate file")
		}
	})
	t.Run("key absent", func(t *testing.T) {
		conf := &Config{
			Enabled:         true,
			CertificateFile: certFile,
			PrivateKeyFile:  filepath.Join(dir, "nope.key"),
		}
		if err := conf.Validate(); err == nil {
			t.Fatal("Validate accepted a missing key file")
		}
	})
	t.Run("both present", func(t *testing.T) {
		conf := &Config{Enabled: true, CertificateFile: certFile, PrivateKeyFile: keyFile}
		if err := conf.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
	})
}

func TestClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := testcert.NewAuthority(t)
	certFile, keyFile := ca.Issue(t, dir, "node")

	t.Run("disabled", func(t *testing.T) {
		conf := &Config{}
		if _, err := conf.ClientTLSConfig(nil); !errors.Is(err, ErrDisabled) {
			t.Fatalf("ClientTLSConfig error = %v, want ErrDisabled", err)
		}
	})

	t.Run("system roots", func(t *testing.T) {
		conf := &Config{Enabled: true, CertificateFile: certFile, PrivateKeyFile: keyFile}
		tc, err := conf.ClientTLSConfig(nil)
		if err != nil {
			t.Fatalf("ClientTLSConfig failed: %v", err)
		}
		if len(tc.Certificates) != 1 {
			t.Fatalf("got %d certificates, want 1", len(tc.Certificates))
		}
		if tc.RootCAs != nil {
			t.Fatal("RootCAs set without a trust anchor")
		}
		if tc.MinVersion != tls.VersionTLS12 {
			t.Fatalf("MinVersion = %#x, want TLS 1.2", tc.MinVersion)
		}
		if tc.ServerName != "" {
			t.Fatalf("ServerName = %q, want no override", tc.ServerName)
		}
	})

	t.Run("trust anchor and test name", func(t *testing.T) {
		conf := &Config{
			Enabled:         true,
			CertificateFile: certFile,
			PrivateKeyFile:  keyFile,
			UseTestCert:     true,
		}
		tc, err := conf.ClientTLSConfig(ca.Cert)
		if err != nil {
			t.Fatalf("ClientTLSConfig failed: %v", err)
		}
		if tc.RootCAs == nil {
			t.Fatal("RootCAs not populated from trust anchor")
		}
		if tc.ServerName != TestServerName {
			t.Fatalf("ServerName = %q, want %q", tc.ServerName, TestServerName)
		}
	})

	t.Run("corrupt material", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.key")
		if err := os.WriteFile(bad, []byte("not a key"), 0o600); err != nil {
			t.Fatalf("write bad key: %v", err)
		}
		conf := &Config{Enabled: true, CertificateFile: certFile, PrivateKeyFile: bad}
		if _, err := conf.ClientTLSConfig(nil); err == nil {
			t.Fatal("ClientTLSConfig accepted a corrupt key")
		}
	})
}

func TestServerTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := testcert.NewAuthority(t)
	certFile, keyFile := ca.Issue(t, dir, "node")

	t.Run("no client auth", func(t *testing.T) {
		conf := &Config{Enabled: true, CertificateFile: certFile, PrivateKeyFile: keyFile}
		tc, err := conf.ServerTLSConfig(ca.Cert)
		if err != nil {
			t.Fatalf("ServerTLSConfig failed: %v", err)
		}
		if tc.ClientAuth != tls.NoClientCert {
			t.Fatalf("ClientAuth = %v, want NoClientCert", tc.ClientAuth)
		}
		if tc.ClientCAs != nil {
			t.Fatal("ClientCAs set without RequireClientAuth")
		}
	})

	t.Run("mutual", func(t *testing.T) {
		conf := &Config{
			Enabled:           true,
			CertificateFile:   certFile,
			PrivateKeyFile:    keyFile,
			RequireClientAuth: true,
		}
		tc, err := conf.ServerTLSConfig(ca.Cert)
		if err != nil {
			t.Fatalf("ServerTLSConfig failed: %v", err)
		}
		if tc.ClientAuth != tls.RequireAndVerifyClientCert {
			t.Fatalf("ClientAuth = %v, want RequireAndVerifyClientCert", tc.ClientAuth)
		}
		if tc.ClientCAs == nil {
			t.Fatal("ClientCAs not populated")
		}
	})
}

func TestLoadCertificate(t *testing.T) {
	dir := t.TempDir()
	ca := testcert.NewAuthority(t)
	caFile := ca.WriteCA(t, dir)

	cert, err := LoadCertificate(caFile)
	if err != nil {
		t.Fatalf("LoadCertificate failed: %v", err)
	}
	if !cert.Equal(ca.Cert) {
		t.Fatal("loaded certificate does not match the written one")
	}

	if _, err := LoadCertificate(filepath.Join(dir, "nope.crt")); err == nil {
		t.Fatal("LoadCertificate accepted a missing file")
	}

	junk := filepath.Join(dir, "junk.crt")
	if err := os.WriteFile(junk, []byte("-- not pem --"), 0o600); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if _, err := LoadCertificate(junk); err == nil {
		t.Fatal("LoadCertificate accepted junk")
	}
}
