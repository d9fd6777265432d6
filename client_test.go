package ncp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestDialServeHandshakeAndRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := NewServer(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accepted := make(chan *Conn, 1)
	go func() {
		_ = srv.Serve(ctx, ln, func(c *Conn) {
			accepted <- c
			<-ctx.Done()
		})
	}()

	transport, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial transport: %v", err)
	}
	client, err := Dial(ctx, transport, DefaultOptions())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}

	typeDSPC, err := NewID("DSPC")
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	fieldPING, _ := NewID("PING")
	paramMSG, _ := NewID("MSG")

	resp, err := client.Send(typeDSPC, FieldSpec{
		Name:   fieldPING,
		TypeID: typeDSPC,
		Params: []Param{{ID: paramMSG, Value: STR("hello")}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()

	msg, err := server.Recv(rctx)
	if err != nil {
		t.Fatalf("server Recv: %v", err)
	}
	if msg.Field.Name != fieldPING {
		t.Fatalf("got field %+v", msg.Field)
	}
	got, ok := msg.Field.Get(paramMSG)
	if !ok || got.STR != "hello" {
		t.Fatalf("unexpected params: %+v", msg.Field.Params)
	}

	fieldPONG, _ := NewID("PONG")
	if err := server.Reply(msg, typeDSPC, []FieldSpec{{Name: fieldPONG, TypeID: typeDSPC}}); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	pong, err := resp.Recv(rctx)
	if err != nil {
		t.Fatalf("resp.Recv: %v", err)
	}
	if pong.Field.Name != fieldPONG {
		t.Fatalf("got reply %+v", pong.Field)
	}
}

func TestDialFailsWhenServerNeverAnswers(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	opts := DefaultOptions()
	opts.HandshakeTimeout = 100 * time.Millisecond

	_, err := Dial(context.Background(), clientSide, opts)
	if err == nil {
		t.Fatal("want an error when the peer never speaks the handshake")
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("want *AuthenticationError, got %v (%T)", err, err)
	}
}
