// Package config loads the configuration of the replication tooling.
//
// Settings come from defaults, an optional YAML file and OZONE_ prefixed
// environment variables, in that order of increasing precedence. A .env
// file in the working directory is folded into the environment first when
// present, which keeps throwaway setups out of the shell profile.
package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Reidddddd/ozone/security"
)

// Config is the full configuration of the replication tooling.
type Config struct {
	Peer struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"peer"`

	// WorkingDir is where fetched replicas are staged and committed.
	WorkingDir string `mapstructure:"working_dir"`
	// LedgerDir holds the replication attempt ledger.
	LedgerDir string `mapstructure:"ledger_dir"`

	// MaxMessageSize bounds one inbound stream frame.
	MaxMessageSize int `mapstructure:"max_message_size"`
	// ShutdownGrace is how long a closing client waits for an in-flight
	// download.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	// ChunkSize is the frame size the serving side streams replicas in.
	ChunkSize int `mapstructure:"chunk_size"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Security struct {
		Enabled           bool   `mapstructure:"enabled"`
		CertificateFile   string `mapstructure:"certificate_file"`
		PrivateKeyFile    string `mapstructure:"private_key_file"`
		TrustAnchorFile   string `mapstructure:"trust_anchor_file"`
		RequireClientAuth bool   `mapstructure:"require_client_auth"`
		UseTestCert       bool   `mapstructure:"use_test_cert"`
	} `mapstructure:"security"`
}

// Load reads configuration. With a non empty path that exact file is
// required; with an empty path ozone-repl.yaml is searched for in the
// working directory and under $HOME/.ozone, and running without any file
// is fine.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ozone-repl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ozone")
	}
	v.SetEnvPrefix("OZONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &c, nil
}

// setDefaults registers every key. Environment overrides only bind to
// known keys, so even settings whose default is the zero value are listed
// here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("peer.host", "localhost")
	v.SetDefault("peer.port", 9859)
	v.SetDefault("working_dir", "data")
	v.SetDefault("ledger_dir", "ledger")
	v.SetDefault("max_message_size", 32*1024*1024)
	v.SetDefault("shutdown_grace", "5s")
	v.SetDefault("chunk_size", 1024*1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("security.enabled", false)
	v.SetDefault("security.certificate_file", "")
	v.SetDefault("security.private_key_file", "")
	v.SetDefault("security.trust_anchor_file", "")
	v.SetDefault("security.require_client_auth", false)
	v.SetDefault("security.use_test_cert", false)
}

// SecurityConfig converts the security section into the profile the
// replication packages consume.
func (c *Config) SecurityConfig() *security.Config {
	return &security.Config{
		Enabled:           c.Security.Enabled,
		CertificateFile:   c.Security.CertificateFile,
		PrivateKeyFile:    c.Security.PrivateKeyFile,
		RequireClientAuth: c.Security.RequireClientAuth,
		UseTestCert:       c.Security.UseTestCert,
	}
}

// TrustAnchor loads the configured trust anchor certificate. It returns
// nil without error when none is configured, which means the system roots
// apply.
func (c *Config) TrustAnchor() (*x509.Certificate, error) {
	if c.Security.TrustAnchorFile == "" {
		return nil, nil
	}
	return security.LoadCertificate(c.Security.TrustAnchorFile)
}
