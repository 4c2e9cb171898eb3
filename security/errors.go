package security

import "errors"

// Sentinel errors reported by configuration validation and TLS material
// loading. Callers that need to distinguish classes of failure should use
// errors.Is.
var (
	// ErrDisabled is returned when TLS material is requested from a
	// configuration that has security switched off.
	ErrDisabled = errors.New("security: not enabled")

	// ErrCertificateUnset is returned when security is enabled but no
	// client certificate path was configured.
	ErrCertificateUnset = errors.New("security: certificate file not set")

	// ErrPrivateKeyUnset is returned when security is enabled but no
	// private key path was configured.
	ErrPrivateKeyUnset = errors.New("security: private key file not set")
)
