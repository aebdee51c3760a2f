// Command evohttpdemo drives a single GET request over a real TCP
// transport, printing the response body as it streams in. It exists to
// exercise transport.TCP end to end against a live target.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/evohttp/evohttp"
	"github.com/evohttp/evohttp/pkg/logging"
	"github.com/evohttp/evohttp/pkg/transport"
)

func main() {
	host := flag.String("host", "example.com", "target host")
	port := flag.Int("port", 443, "target port")
	path := flag.String("path", "/", "request path")
	useTLS := flag.Bool("tls", true, "use TLS")
	flag.Parse()

	evohttp.SetDefaultLogger(logging.NewStandard(nil))

	tr := evohttp.NewTCPTransport(transport.Config{})
	ctx := evohttp.NewContext(tr, nil, nil, nil, evohttp.Timeouts{})

	if err := ctx.Connect(context.Background(), *host, *port, *useTLS); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer ctx.Disconnect(true)

	buf := make([]byte, 4096)
	b := evohttp.NewBuilder(buf)
	if err := b.Init(evohttp.GET, *path, evohttp.HTTP11); err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := b.SetProperty("Host", *host); err != nil {
		log.Fatalf("set host: %v", err)
	}
	if err := b.SetProperty("Connection", "close"); err != nil {
		log.Fatalf("set connection: %v", err)
	}
	if _, err := b.Complete(); err != nil {
		log.Fatalf("complete: %v", err)
	}

	if err := ctx.Send(context.Background(), b.Bytes()); err != nil {
		log.Fatalf("send: %v", err)
	}

	out := make([]byte, 512)
	for {
		n, err := ctx.Recv(context.Background(), out)
		if n > 0 {
			os.Stdout.Write(out[:n])
		}
		if err != nil {
			log.Fatalf("recv: %v", err)
		}
		if n == 0 {
			break
		}
	}
	fmt.Fprintln(os.Stderr, "\n--- done ---")
}
