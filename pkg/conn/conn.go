// Package conn implements the connection context and response receiver:
// the stateful core that owns a transport handle, a staging buffer, and the
// flags tracking where a request/response cycle currently stands. This is
// the component the rest of the module exists to support.
package conn

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/evohttp/evohttp/pkg/alloc"
	"github.com/evohttp/evohttp/pkg/buffer"
	"github.com/evohttp/evohttp/pkg/constants"
	"github.com/evohttp/evohttp/pkg/errors"
	"github.com/evohttp/evohttp/pkg/logging"
	"github.com/evohttp/evohttp/pkg/request"
	"github.com/evohttp/evohttp/pkg/timing"
	"github.com/evohttp/evohttp/pkg/transport"
)

// Flags is the receive-state bitset carried in the connection context.
type Flags uint8

const (
	FlagTransferChunked Flags = 1 << iota
	FlagReadingChunk
	FlagHeaderReceived
	FlagEndingChunkRequired
	FlagConnectionEstablished
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Timeouts carries the three independent per-call deadlines. Zero means
// "implementation default".
type Timeouts struct {
	Connect time.Duration
	Send    time.Duration
	Recv    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect == 0 {
		t.Connect = constants.DefaultConnectTimeout
	}
	if t.Send == 0 {
		t.Send = constants.DefaultSendTimeout
	}
	if t.Recv == 0 {
		t.Recv = constants.DefaultRecvTimeout
	}
	return t
}

// Process-wide injection points, kept alongside constructor injection for
// fidelity to the historical "set once before concurrent use" surface.
// Replacing any of these while a context is in active use is undefined.
var (
	defaultTransport transport.Transport
	defaultAllocator alloc.Allocator = alloc.Default{}
	defaultLogger    logging.Logger  = logging.NoopLogger
	defaultRecorder  timing.Recorder = timing.NoopRecorder
)

// SetTransport installs the process-wide default Transport used by contexts
// constructed with a nil Transport.
func SetTransport(t transport.Transport) { defaultTransport = t }

// SetAllocator installs the process-wide default Allocator.
func SetAllocator(a alloc.Allocator) { defaultAllocator = a }

// SetLogger installs the process-wide default Logger.
func SetLogger(l logging.Logger) { defaultLogger = l }

// SetMetricsRecorder installs the process-wide default timing.Recorder.
func SetMetricsRecorder(r timing.Recorder) { defaultRecorder = r }

// Context is one logical connection: transport handle, staging buffer, and
// receive-state flags. It is not safe for concurrent use by multiple
// goroutines; serialize access externally if a context is shared.
type Context struct {
	transport transport.Transport
	allocator alloc.Allocator
	logger    logging.Logger
	recorder  timing.Recorder

	handle   transport.Handle
	timeouts Timeouts
	capacity int

	flags         Flags
	contentLength int64
	staging       *buffer.Staging
	chunkSize     int
	chunkRead     int
	isHead        bool

	timer   *timing.Timer
	lastErr error
}

// New constructs a Context. Any nil capability argument falls back to the
// process-wide default installed via the matching Set* function (and
// ultimately to the package defaults if none was ever set).
func New(t transport.Transport, a alloc.Allocator, l logging.Logger, rec timing.Recorder, timeouts Timeouts) *Context {
	if t == nil {
		t = defaultTransport
	}
	if a == nil {
		a = defaultAllocator
	}
	if l == nil {
		l = defaultLogger
	}
	if rec == nil {
		rec = defaultRecorder
	}
	return &Context{
		transport: t,
		allocator: a,
		logger:    l,
		recorder:  rec,
		timeouts:  timeouts.withDefaults(),
		capacity:  constants.DefaultStagingCapacity,
	}
}

// LastError returns the error behind the most recent zero-flattened Recv,
// or nil if the connection is healthy. Callers migrating from the
// historical "recv returns 0 on both completion and failure" convention
// should consult this after any Recv that returns (0, nil) if they need to
// tell the two apart.
func (c *Context) LastError() error { return c.lastErr }

// IsConnected reports whether the connection is currently established.
func (c *Context) IsConnected() bool { return c.flags.has(FlagConnectionEstablished) }

// Connect opens the transport to host:port. useTLS is forwarded verbatim to
// the transport; this core makes no TLS decisions of its own.
func (c *Context) Connect(ctx context.Context, host string, port int, useTLS bool) error {
	c.timer = timing.NewTimer(c.recorder)
	c.timer.StartConnect()
	h, err := c.transport.Open(ctx, host, port, useTLS, c.timeouts.Connect)
	c.timer.EndConnect()
	if err != nil {
		c.lastErr = err
		c.logger.Errorf("connect to %s:%d failed: %v", host, port, err)
		return err
	}
	c.handle = h
	c.flags = FlagConnectionEstablished
	c.lastErr = nil
	c.logger.Debugf("connected to %s:%d (tls=%v)", host, port, useTLS)
	return nil
}

// Disconnect releases the staging buffer, clears transient state, and
// closes the transport. With force=true, any close error is suppressed and
// the logical context is reset regardless.
func (c *Context) Disconnect(force bool) error {
	var closeErr error
	if c.handle != nil {
		closeErr = c.transport.Close(c.handle, c.timeouts.Connect)
	}
	c.handle = nil
	c.flags = 0
	c.contentLength = 0
	c.chunkSize = 0
	c.chunkRead = 0
	c.isHead = false
	c.staging = nil

	if !force && closeErr != nil {
		c.lastErr = closeErr
		return closeErr
	}
	c.lastErr = nil
	return nil
}

// Send drives the send path: draining any pending chunked response left
// over from a prior receive, resetting transient state, then writing data
// in full under the send deadline.
func (c *Context) Send(ctx context.Context, data []byte) error {
	if !c.IsConnected() {
		err := errors.NewProtocolState("conn.Send", "send called while disconnected")
		c.lastErr = err
		return err
	}

	if c.flags.has(FlagEndingChunkRequired) {
		c.drainPendingBody(ctx)
	}

	c.resetTransient()
	c.isHead = isHeadRequest(data)

	c.timer.StartSend()
	n, err := c.transport.Write(c.handle, data, c.timeouts.Send)
	c.timer.EndSend()
	if err != nil {
		c.lastErr = err
		c.logger.Errorf("send failed after %d/%d bytes: %v", n, len(data), err)
		return err
	}
	if n != len(data) {
		err := errors.NewTransport("conn.Send", io.ErrShortWrite)
		c.lastErr = err
		return err
	}
	c.lastErr = nil
	c.timer.StartTTFB()
	return nil
}

// resetTransient clears the fields Send's step 2 resets, retaining the
// staging buffer's backing array across requests.
func (c *Context) resetTransient() {
	c.contentLength = 0
	c.flags &^= FlagTransferChunked | FlagReadingChunk | FlagHeaderReceived | FlagEndingChunkRequired
	c.chunkSize = 0
	c.chunkRead = 0
	if c.staging != nil {
		c.staging.Reset()
	}
}

// drainPendingBody drives the chunked decoder on a scratch buffer until the
// terminating chunk is consumed or the transport fails. A drain failure
// does not block Send: the wire may be left in an inconsistent state, but
// the caller already chose to move on (see failure semantics in Send path
// design).
func (c *Context) drainPendingBody(ctx context.Context) {
	scratch := make([]byte, c.capacity)
	for {
		n, err := c.chunkedRecv(ctx, scratch)
		if err != nil {
			c.logger.Errorf("pending body drain failed: %v", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// Recv produces the next slice of response bytes into out. It returns
// (0, nil) when the response is complete. Errors are returned directly
// rather than flattened to zero; LastError mirrors the historical
// zero-flattening behavior for callers that still only look at whether
// n == 0.
func (c *Context) Recv(ctx context.Context, out []byte) (int, error) {
	if !c.IsConnected() {
		err := errors.NewProtocolState("conn.Recv", "recv called while disconnected")
		c.lastErr = err
		return 0, err
	}

	if c.staging == nil {
		buf := c.allocator.Alloc(c.capacity)
		st, err := buffer.New(c.capacity, buf)
		if err != nil {
			c.lastErr = err
			return 0, err
		}
		c.staging = st
	}

	if !c.flags.has(FlagHeaderReceived) {
		if err := c.readHeader(ctx); err != nil {
			c.lastErr = err
			c.logger.Errorf("header read failed: %v", err)
			return 0, err
		}
		if c.timer != nil {
			c.timer.EndTTFB()
		}
		if c.isHead {
			// RFC 9110 9.3.2: a response to HEAD never carries a body,
			// regardless of what Content-Length or Transfer-Encoding claim.
			c.lastErr = nil
			return 0, nil
		}
	}

	var n int
	var err error
	if c.flags.has(FlagTransferChunked) {
		n, err = c.chunkedRecv(ctx, out)
	} else {
		n, err = c.identityRecv(ctx, out)
	}
	c.lastErr = err
	return n, err
}

// readHeader implements Phase A: accumulate the response header across
// arbitrary read sizes into staging, rotating on overflow, until the
// terminator is found.
func (c *Context) readHeader(ctx context.Context) error {
	for {
		if c.staging.Free() == 0 {
			data := c.staging.Bytes()
			idx := bytes.LastIndex(data, []byte(constants.PropertyDelimiter))
			if idx < 0 {
				return errors.NewBufferTooSmall("conn.Recv", "header larger than staging capacity")
			}
			c.staging.Consume(idx)
			c.staging.Compact()
			if c.staging.Free() == 0 {
				return errors.NewBufferTooSmall("conn.Recv", "header larger than staging capacity")
			}
		}

		n, err := c.transport.Read(c.handle, c.staging.FillSlot(), c.timeouts.Recv)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NewTransport("conn.Recv", io.ErrUnexpectedEOF)
		}
		c.staging.Advance(n)

		c.scanHeaderFields()

		if idx := bytes.Index(c.staging.Bytes(), []byte(constants.HeaderTerminator)); idx >= 0 {
			c.staging.Consume(idx + len(constants.HeaderTerminator))
			c.staging.Compact()
			c.flags |= FlagHeaderReceived
			c.logger.Debugf("header received, %d body-prefix bytes retained", c.staging.Len())
			return nil
		}
	}
}

// scanHeaderFields extracts Content-Length and Transfer-Encoding from the
// currently staged header bytes. It is idempotent: calling it repeatedly
// against a progressively more complete prefix converges on the final
// values, since the only observable state it writes is overwritten with the
// same, now more-confident, answer each time.
func (c *Context) scanHeaderFields() {
	data := c.staging.Bytes()

	if v, ok := headerValuePrefix(data, "Content-Length:"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.contentLength = n
		}
	}
	if v, ok := headerValuePrefix(data, "Transfer-Encoding:"); ok {
		if strings.Contains(strings.ToLower(v), "chunked") {
			c.flags |= FlagTransferChunked | FlagEndingChunkRequired
		}
	}
}

// headerValuePrefix finds the first substring match of key in data and
// returns the bytes between it and the next CRLF. It reports ok=false when
// key is absent, or present but its line has not fully arrived yet.
func headerValuePrefix(data []byte, key string) (string, bool) {
	idx := bytes.Index(data, []byte(key))
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)
	rel := bytes.Index(data[start:], []byte(constants.PropertyDelimiter))
	if rel < 0 {
		return "", false
	}
	return string(data[start : start+rel]), true
}

// identityRecv implements Phase B for identity (non-chunked) framing. There
// is no explicit terminator at this layer: a clean EOF from the transport
// means the peer closed the stream, which is how an identity body without a
// Content-Length (or a fully delivered one) signals completion, so it is
// reported as (n, nil) rather than as a failure.
func (c *Context) identityRecv(ctx context.Context, out []byte) (int, error) {
	produced := 0
	if c.staging.Len() > 0 {
		n := min(c.staging.Len(), len(out))
		copy(out[:n], c.staging.Bytes()[:n])
		c.staging.Consume(n)
		produced = n
	}
	if produced < len(out) {
		n, err := c.transport.Read(c.handle, out[produced:], c.timeouts.Recv)
		produced += n
		if err != nil && !stderrors.Is(err, io.EOF) {
			return produced, err
		}
	}
	return produced, nil
}

func isHeadRequest(data []byte) bool {
	sp := bytes.IndexByte(data, ' ')
	if sp < 0 {
		return false
	}
	return strings.EqualFold(string(data[:sp]), request.HEAD.String())
}
