package ncp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestServeShutdownClosesTrackedConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := NewServer(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = srv.Serve(ctx, ln, func(c *Conn) {
			<-ctx.Done()
		})
	}()

	transport, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial transport: %v", err)
	}
	client, err := Dial(context.Background(), transport, DefaultOptions())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	cancel()

	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("Serve never returned after ctx cancellation")
	}

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	if _, err := client.Recv(rctx); !errors.Is(err, ErrConnectionClosed) {
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("want ErrConnectionClosed or *NetworkError after server shutdown, got %v (%T)", err, err)
		}
	}
}

func TestServeOneHandshakeFailureDoesNotAffectOthers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := NewServer(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan *Conn, 1)
	go func() {
		_ = srv.Serve(ctx, ln, func(c *Conn) {
			handled <- c
			<-ctx.Done()
		})
	}()

	bad, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial bad transport: %v", err)
	}
	// A peer that never speaks the handshake at all; the server's
	// handshake read times out (no HandshakeTimeout set here, so instead
	// it is unblocked by closing the transport from this side).
	_ = bad.Close()

	transport, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial good transport: %v", err)
	}
	client, err := Dial(ctx, transport, DefaultOptions())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("well-behaved peer was never handled after a bad peer connected")
	}
}
