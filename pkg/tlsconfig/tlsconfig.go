// Package tlsconfig provides the TLS version and cipher-suite constants the
// default transports apply when a caller asks for an encrypted connection.
package tlsconfig

import "crypto/tls"

// SSL/TLS protocol version identifiers, re-exported for callers that want
// to bound a transport.Config without importing crypto/tls directly.
const (
	VersionTLS10 uint16 = tls.VersionTLS10
	VersionTLS11 uint16 = tls.VersionTLS11
	VersionTLS12 uint16 = tls.VersionTLS12
	VersionTLS13 uint16 = tls.VersionTLS13
)

// Cipher suites applied by ApplyCipherSuites, strongest first.
var (
	// CipherSuitesTLS12Secure: ECDHE with AEAD, no CBC mode.
	CipherSuitesTLS12Secure = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}

	// CipherSuitesTLS12Compatible: the ECDHE AES-GCM suites plus CBC mode
	// for older servers; the ChaCha20-Poly1305 suites are not included.
	CipherSuitesTLS12Compatible = []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	}
)

// ApplyCipherSuites sets cfg.CipherSuites based on minVersion. TLS 1.3
// manages its own suites, so cfg.CipherSuites is left nil in that case.
func ApplyCipherSuites(cfg *tls.Config, minVersion uint16) {
	switch {
	case minVersion >= VersionTLS13:
		cfg.CipherSuites = nil
	case minVersion >= VersionTLS12:
		cfg.CipherSuites = CipherSuitesTLS12Secure
	default:
		cfg.CipherSuites = CipherSuitesTLS12Compatible
	}
}

// ConfigureSNI applies Server Name Indication to cfg, following priority:
// an already-set ServerName wins, then disableSNI suppresses it entirely,
// then customSNI, then fallbackHost.
func ConfigureSNI(cfg *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if cfg == nil || cfg.ServerName != "" || disableSNI {
		return
	}
	if customSNI != "" {
		cfg.ServerName = customSNI
		return
	}
	cfg.ServerName = fallbackHost
}
