// Package transport provides the byte-stream capability the protocol core
// is driven over. The core never dials a socket itself; it calls Open,
// Read, Write, and Close on whatever Transport is injected, so that the
// same core runs unmodified over TCP, TLS, a SOCKS5 upstream, or a
// proprietary stream on hardware with no BSD sockets at all.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/evohttp/evohttp/pkg/errors"
	"github.com/evohttp/evohttp/pkg/tlsconfig"
)

// Handle is the opaque stream identifier Open returns and every other
// operation takes. A net.Conn already satisfies everything the core needs
// of a handle (Read, Write, Close, deadlines), so implementations in this
// package use one directly instead of inventing a second indirection.
type Handle = net.Conn

// Transport is the four-operation capability the core is driven over.
// Implementations must honor the supplied deadline on every call; a
// deadline of zero means "use the transport's own default".
type Transport interface {
	// Open dials host:port and returns a live Handle. useTLS is forwarded
	// verbatim from Connect; the core makes no TLS decision of its own.
	Open(ctx context.Context, host string, port int, useTLS bool, timeout time.Duration) (Handle, error)
	// Close releases h. Implementations must tolerate being called with a
	// Handle that Read/Write already failed on.
	Close(h Handle, timeout time.Duration) error
	// Read fills buf with at most len(buf) bytes, honoring timeout.
	Read(h Handle, buf []byte, timeout time.Duration) (int, error)
	// Write writes all of data or returns an error; short writes are
	// retried internally under timeout.
	Write(h Handle, data []byte, timeout time.Duration) (int, error)
}

// Config configures the TLS half of TCP and SOCKS5. Mirrors the subset of
// the original dialer's knobs relevant to a minimal client core.
type Config struct {
	// ServerName overrides SNI; defaults to the dialed host.
	ServerName string
	// DisableSNI suppresses the SNI extension entirely.
	DisableSNI bool
	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool
	// MinVersion/MaxVersion bound the negotiated TLS version; zero means
	// "library default".
	MinVersion, MaxVersion uint16
	// RootCAs overrides the system trust store when non-nil.
	RootCAs *x509.CertPool
	// ClientCertFile/ClientKeyFile configure mutual TLS, if both are set.
	ClientCertFile, ClientKeyFile string
	// KeepAlive is passed to net.Dialer as the TCP keepalive period: zero
	// keeps the net package's default keepalive, a negative value disables
	// it. Only TCP applies it; SOCKS5 does not.
	KeepAlive time.Duration
}

func (c Config) buildTLSConfig(host string) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         c.MinVersion,
		MaxVersion:         c.MaxVersion,
		RootCAs:            c.RootCAs,
		NextProtos:         []string{"http/1.1"},
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tlsconfig.VersionTLS12
	}
	tlsconfig.ApplyCipherSuites(cfg, cfg.MinVersion)
	tlsconfig.ConfigureSNI(cfg, c.ServerName, c.DisableSNI, host)

	if c.ClientCertFile != "" && c.ClientKeyFile != "" {
		certPEM, err := os.ReadFile(c.ClientCertFile)
		if err != nil {
			return nil, fmt.Errorf("reading client certificate: %w", err)
		}
		keyPEM, err := os.ReadFile(c.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading client key: %w", err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing client certificate/key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func upgradeTLS(ctx context.Context, conn net.Conn, cfg Config, host string) (net.Conn, error) {
	tlsCfg, err := cfg.buildTLSConfig(host)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TLS handshake failed for %s: %w", host, err)
	}
	return tlsConn, nil
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// TCP dials plain TCP, upgrading to TLS when the caller requests it via
// Open's useTLS parameter.
type TCP struct {
	Config Config
}

// NewTCP constructs a TCP transport with the given TLS configuration.
func NewTCP(cfg Config) *TCP {
	return &TCP{Config: cfg}
}

// Open implements Transport.
func (t *TCP) Open(ctx context.Context, host string, port int, useTLS bool, timeout time.Duration) (Handle, error) {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: t.Config.KeepAlive}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.NewTransport("transport.Open", err)
	}
	if useTLS {
		tlsConn, err := upgradeTLS(ctx, conn, t.Config, host)
		if err != nil {
			return nil, errors.NewTransport("transport.Open", err)
		}
		return tlsConn, nil
	}
	return conn, nil
}

// Close implements Transport.
func (t *TCP) Close(h Handle, timeout time.Duration) error {
	if h == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		return errors.NewTransport("transport.Close", err)
	}
	return nil
}

// Read implements Transport.
func (t *TCP) Read(h Handle, buf []byte, timeout time.Duration) (int, error) {
	if err := h.SetReadDeadline(deadlineFrom(timeout)); err != nil {
		return 0, errors.NewTransport("transport.Read", err)
	}
	n, err := h.Read(buf)
	if err != nil {
		return n, errors.NewTransport("transport.Read", err)
	}
	return n, nil
}

// Write implements Transport. Short writes are retried until the deadline.
func (t *TCP) Write(h Handle, data []byte, timeout time.Duration) (int, error) {
	if err := h.SetWriteDeadline(deadlineFrom(timeout)); err != nil {
		return 0, errors.NewTransport("transport.Write", err)
	}
	total := 0
	for total < len(data) {
		n, err := h.Write(data[total:])
		total += n
		if err != nil {
			return total, errors.NewTransport("transport.Write", err)
		}
	}
	return total, nil
}
