package conn

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/evohttp/evohttp/pkg/transport"
)

// fakeHandle satisfies transport.Handle (= net.Conn) without touching a
// real socket; fakeTransport never calls through to it, since it tracks
// connection state itself.
type fakeHandle struct{}

func (fakeHandle) Read(b []byte) (int, error)         { return 0, io.EOF }
func (fakeHandle) Write(b []byte) (int, error)        { return 0, io.EOF }
func (fakeHandle) Close() error                       { return nil }
func (fakeHandle) LocalAddr() net.Addr                { return nil }
func (fakeHandle) RemoteAddr() net.Addr               { return nil }
func (fakeHandle) SetDeadline(t time.Time) error      { return nil }
func (fakeHandle) SetReadDeadline(t time.Time) error  { return nil }
func (fakeHandle) SetWriteDeadline(t time.Time) error { return nil }

// fakeTransport serves a canned response byte slice, optionally fragmented
// into small reads, and records every write it is asked to perform. It is
// the only double used in this package's tests (the root package's test has
// its own, simpler one); there is no mocking library in play anywhere.
type fakeTransport struct {
	response []byte
	pos      int
	fragment int // max bytes per Read; 0 means "as much as fits"
	writes   [][]byte
}

func (f *fakeTransport) Open(ctx context.Context, host string, port int, useTLS bool, timeout time.Duration) (transport.Handle, error) {
	return fakeHandle{}, nil
}

func (f *fakeTransport) Close(h transport.Handle, timeout time.Duration) error { return nil }

func (f *fakeTransport) Write(h transport.Handle, data []byte, timeout time.Duration) (int, error) {
	cp := append([]byte(nil), data...)
	f.writes = append(f.writes, cp)
	return len(data), nil
}

func (f *fakeTransport) Read(h transport.Handle, buf []byte, timeout time.Duration) (int, error) {
	if f.pos >= len(f.response) {
		return 0, io.EOF
	}
	n := len(f.response) - f.pos
	if f.fragment > 0 && n > f.fragment {
		n = f.fragment
	}
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, f.response[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

func mustConnect(t *testing.T, ft *fakeTransport) *Context {
	t.Helper()
	c := New(ft, nil, nil, nil, Timeouts{})
	if err := c.Connect(context.Background(), "example.invalid", 80, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestIdentityResponseS1(t *testing.T) {
	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []string{"he", "ll", "o"}
	for _, w := range want {
		out := make([]byte, 2)
		n, err := c.Recv(context.Background(), out)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if string(out[:n]) != w {
			t.Fatalf("Recv = %q, want %q", out[:n], w)
		}
	}

	out := make([]byte, 2)
	n, err := c.Recv(context.Background(), out)
	if n != 0 || err != nil {
		t.Fatalf("expected (0, nil) at transport EOF, got (%d, %v)", n, err)
	}
}

func TestChunkedResponseS2(t *testing.T) {
	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := make([]byte, 100)
	n, err := c.Recv(context.Background(), out)
	if err != nil || string(out[:n]) != "hello" {
		t.Fatalf("first chunk = %q, %v, want hello", out[:n], err)
	}
	n, err = c.Recv(context.Background(), out)
	if err != nil || string(out[:n]) != " world" {
		t.Fatalf("second chunk = %q, %v, want ' world'", out[:n], err)
	}
	n, err = c.Recv(context.Background(), out)
	if err != nil || n != 0 {
		t.Fatalf("terminating recv = %d, %v, want (0, nil)", n, err)
	}
}

func TestFragmentedWireS3(t *testing.T) {
	ft := &fakeTransport{
		response: []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"),
		fragment: 1,
	}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got []byte
	for {
		out := make([]byte, 100)
		n, err := c.Recv(context.Background(), out)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if n == 0 {
			break
		}
		got = append(got, out[:n]...)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

// TestHeaderRotationS4 exercises a header that does not fit in a single
// staging fill at the default capacity: readHeader must rotate the buffer
// (discarding consumed header bytes) rather than failing, as long as the
// header as a whole still fits once prior lines are dropped.
func TestHeaderRotationS4(t *testing.T) {
	var header strings.Builder
	header.WriteString("HTTP/1.1 200 OK\r\n")
	for i := 0; i < 10; i++ {
		header.WriteString("X-Pad-" + string(rune('A'+i)) + ": " + strings.Repeat("v", 30) + "\r\n")
	}
	header.WriteString("Content-Length: 2\r\n\r\nhi")

	ft := &fakeTransport{response: []byte(header.String()), fragment: 40}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := make([]byte, 2)
	n, err := c.Recv(context.Background(), out)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(out[:n]) != "hi" {
		t.Fatalf("Recv = %q, want %q", out[:n], "hi")
	}
}

func TestHeaderOverflowS5(t *testing.T) {
	longLine := "X-Long: " + string(make([]byte, 300)) + "\r\n"
	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\n" + longLine)}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := make([]byte, 16)
	n, err := c.Recv(context.Background(), out)
	if err == nil {
		t.Fatalf("expected header-overflow error, got n=%d err=nil", n)
	}
}

func TestConnectionReuseDrainsPendingBodyS6(t *testing.T) {
	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET /1 HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send 1: %v", err)
	}

	out := make([]byte, 100)
	n, err := c.Recv(context.Background(), out)
	if err != nil || string(out[:n]) != "hello" {
		t.Fatalf("first chunk = %q, %v", out[:n], err)
	}
	if !c.flags.has(FlagEndingChunkRequired) {
		t.Fatal("expected ENDING_CHUNK_REQUIRED still set before reuse")
	}

	if err := c.Send(context.Background(), []byte("GET /2 HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send 2: %v", err)
	}

	if c.flags != FlagConnectionEstablished {
		t.Fatalf("flags not reset after Send: %v", c.flags)
	}
	if c.staging.Len() != 0 {
		t.Fatalf("staging not drained: %d bytes remain", c.staging.Len())
	}
	if len(ft.writes) != 2 || string(ft.writes[1]) != "GET /2 HTTP/1.1\r\nHost: h\r\n\r\n" {
		t.Fatalf("second request not written cleanly: %v", ft.writes)
	}
}

func TestDisconnectReleasesStaging(t *testing.T) {
	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := make([]byte, 16)
	if _, err := c.Recv(context.Background(), out); err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if err := c.Disconnect(false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.staging != nil {
		t.Fatal("staging not released after Disconnect")
	}
	if c.IsConnected() {
		t.Fatal("IsConnected true after Disconnect")
	}
}

func TestHeadResponseHasNoBody(t *testing.T) {
	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n")}
	c := mustConnect(t, ft)
	if err := c.Send(context.Background(), []byte("HEAD / HTTP/1.1\r\nHost: h\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := make([]byte, 16)
	n, err := c.Recv(context.Background(), out)
	if err != nil || n != 0 {
		t.Fatalf("HEAD response Recv = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRecvBeforeSendIsProtocolError(t *testing.T) {
	c := New(&fakeTransport{}, nil, nil, nil, Timeouts{})
	out := make([]byte, 16)
	_, err := c.Recv(context.Background(), out)
	if err == nil {
		t.Fatal("expected protocol-state error calling Recv before Connect/Send")
	}
}
