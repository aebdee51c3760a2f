// Package evohttp is an embeddable HTTP/1.x client protocol core: a small,
// allocation-conscious library that formats outgoing request messages,
// drives the request/response cycle over a pluggable byte-stream transport,
// and decodes response bodies in both identity and chunked
// Transfer-Encoding framings. It targets resource-constrained environments
// where the transport is not guaranteed to be BSD sockets and where
// response bytes may arrive in small, unaligned fragments.
package evohttp

import (
	"github.com/evohttp/evohttp/pkg/alloc"
	"github.com/evohttp/evohttp/pkg/conn"
	"github.com/evohttp/evohttp/pkg/errors"
	"github.com/evohttp/evohttp/pkg/logging"
	"github.com/evohttp/evohttp/pkg/request"
	"github.com/evohttp/evohttp/pkg/timing"
	"github.com/evohttp/evohttp/pkg/transport"
)

// Version identifies this module's API surface.
const Version = "1.0.0"

// Re-exported types, so a caller only ever needs to import this one
// package for the common path; the sub-packages remain independently
// importable for embedders that only need the request builder, say.
type (
	// Context is one logical connection: transport handle, staging buffer,
	// and receive-state flags.
	Context = conn.Context

	// Timeouts carries the three independent per-call deadlines.
	Timeouts = conn.Timeouts

	// Builder formats a request message in place into a caller-owned buffer.
	Builder = request.Builder

	// Method is one of the four request methods the builder understands.
	Method = request.Method

	// HTTPVersion is the HTTP version written into the request line.
	HTTPVersion = request.Version

	// Transport is the byte-stream capability the core is driven over.
	Transport = transport.Transport

	// Handle is the opaque stream identifier a Transport's Open returns.
	Handle = transport.Handle

	// Allocator hands out the staging buffer on demand.
	Allocator = alloc.Allocator

	// Logger is the injected logging capability.
	Logger = logging.Logger

	// Recorder receives per-request timing events.
	Recorder = timing.Recorder

	// Error is the structured error type this module's own failure
	// conditions are reported with; see errors.Error for the exceptions.
	Error = errors.Error

	// ErrorKind classifies the failure condition behind an Error.
	ErrorKind = errors.Kind
)

// Request methods.
const (
	GET  = request.GET
	HEAD = request.HEAD
	POST = request.POST
	PUT  = request.PUT
)

// Request-line HTTP versions.
const (
	HTTP10 = request.HTTP10
	HTTP11 = request.HTTP11
)

// Error kinds.
const (
	KindBufferTooSmall     = errors.KindBufferTooSmall
	KindMalformed          = errors.KindMalformed
	KindTransport          = errors.KindTransport
	KindProtocolState      = errors.KindProtocolState
	KindResourceExhaustion = errors.KindResourceExhaustion
)

// NewBuilder wraps buf for in-place request formatting. See request.Builder.
func NewBuilder(buf []byte) *Builder {
	return request.NewBuilder(buf)
}

// GetProperty reads a header value out of an arbitrary HTTP message.
func GetProperty(name string, message []byte) (string, error) {
	return request.GetProperty(name, message)
}

// NewContext constructs a connection context. Any nil capability argument
// falls back to the process-wide default installed via the matching
// SetDefault* function.
func NewContext(t Transport, a Allocator, l Logger, rec Recorder, timeouts Timeouts) *Context {
	return conn.New(t, a, l, rec, timeouts)
}

// SetDefaultTransport installs the process-wide default Transport.
// Replacing it while any context is active is undefined, matching the
// historical "set once before concurrent use" contract.
func SetDefaultTransport(t Transport) { conn.SetTransport(t) }

// SetDefaultAllocator installs the process-wide default Allocator.
func SetDefaultAllocator(a Allocator) { conn.SetAllocator(a) }

// SetDefaultLogger installs the process-wide default Logger.
func SetDefaultLogger(l Logger) { conn.SetLogger(l) }

// SetDefaultMetricsRecorder installs the process-wide default Recorder.
func SetDefaultMetricsRecorder(r Recorder) { conn.SetMetricsRecorder(r) }

// NewTCPTransport builds a transport.TCP with the given TLS configuration.
func NewTCPTransport(cfg transport.Config) Transport {
	return transport.NewTCP(cfg)
}

// NewSOCKS5Transport builds a transport.SOCKS5 dialing targets through
// proxyAddr.
func NewSOCKS5Transport(proxyAddr string, auth *transport.ProxyAuth, cfg transport.Config) Transport {
	return transport.NewSOCKS5(proxyAddr, auth, cfg)
}
