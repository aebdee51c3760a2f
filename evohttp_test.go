package evohttp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

// fakeHandle satisfies transport.Handle (= net.Conn); the accompanying
// fakeTransport never calls through to it, so every method is a stub.
type fakeHandle struct{}

func (fakeHandle) Read(b []byte) (int, error)         { return 0, io.EOF }
func (fakeHandle) Write(b []byte) (int, error)        { return 0, io.EOF }
func (fakeHandle) Close() error                       { return nil }
func (fakeHandle) LocalAddr() net.Addr                { return nil }
func (fakeHandle) RemoteAddr() net.Addr               { return nil }
func (fakeHandle) SetDeadline(t time.Time) error      { return nil }
func (fakeHandle) SetReadDeadline(t time.Time) error  { return nil }
func (fakeHandle) SetWriteDeadline(t time.Time) error { return nil }

type fakeTransport struct {
	response []byte
	pos      int
	writes   [][]byte
}

func (f *fakeTransport) Open(ctx context.Context, host string, port int, useTLS bool, timeout time.Duration) (Handle, error) {
	return fakeHandle{}, nil
}

func (f *fakeTransport) Close(h Handle, timeout time.Duration) error { return nil }

func (f *fakeTransport) Write(h Handle, data []byte, timeout time.Duration) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), data...))
	return len(data), nil
}

func (f *fakeTransport) Read(h Handle, buf []byte, timeout time.Duration) (int, error) {
	if f.pos >= len(f.response) {
		return 0, io.EOF
	}
	n := copy(buf, f.response[f.pos:])
	f.pos += n
	return n, nil
}

// TestEndToEndRequestResponse exercises the root package's re-exported
// constructors against a single GET request and an identity-framed
// response, the same round trip an embedder doing `import "evohttp"` and
// nothing else would drive.
func TestEndToEndRequestResponse(t *testing.T) {
	buf := make([]byte, 256)
	b := NewBuilder(buf)
	if err := b.Init(GET, "/status", HTTP11); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.SetProperty("Host", "example.invalid"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if _, err := b.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	ft := &fakeTransport{response: []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")}
	ctx := NewContext(ft, nil, nil, nil, Timeouts{})
	if err := ctx.Connect(context.Background(), "example.invalid", 80, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := ctx.Send(context.Background(), b.Bytes()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := make([]byte, 16)
	n, err := ctx.Recv(context.Background(), out)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(out[:n]) != "ok" {
		t.Fatalf("Recv = %q, want %q", out[:n], "ok")
	}

	if len(ft.writes) != 1 {
		t.Fatalf("expected one write, got %d", len(ft.writes))
	}
	if got, err := GetProperty("Host", ft.writes[0]); err != nil || got != "example.invalid" {
		t.Fatalf("GetProperty(Host) = %q, %v", got, err)
	}

	if err := ctx.Disconnect(false); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if ctx.IsConnected() {
		t.Fatal("IsConnected true after Disconnect")
	}
}
