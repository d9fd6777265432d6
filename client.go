package ncp

import (
	"context"
	"io"

	ncpconn "github.com/crfsradio/ncp/internal/conn"
	"github.com/crfsradio/ncp/internal/observability"
)

// Conn is one NCP connection, client or server side, wrapping a single
// opaque transport. Every field it produces or accepts flows through
// Send/SendPacket/Recv/RecvField.
type Conn struct {
	c *ncpconn.Conn
}

// Dial performs the client-side handshake over transport (already
// connected — dialing the socket itself is the caller's concern) and
// starts the connection's reader task.
func Dial(ctx context.Context, transport io.ReadWriteCloser, opts Options) (*Conn, error) {
	log := observability.InitLogger("ncp-client")
	cc := ncpconn.New(transport, ncpconn.RoleClient, opts.toInternal(), log)
	if err := cc.Handshake(ctx); err != nil {
		_ = transport.Close()
		return nil, convertErr(err)
	}
	cc.StartReader()
	cc.StartAutoLink()
	return &Conn{c: cc}, nil
}

// Send encodes a single-field packet and returns a Response holding
// {field_id}.
func (c *Conn) Send(packetType ID, spec FieldSpec) (*Response, error) {
	r, err := c.c.Send(packetType, spec)
	if err != nil {
		return nil, convertErr(err)
	}
	return &Response{r: r}, nil
}

// SendPacket encodes a multi-field packet and returns a Response holding
// the full id set.
func (c *Conn) SendPacket(packetType ID, specs []FieldSpec) (*Response, error) {
	r, err := c.c.SendPacket(packetType, specs)
	if err != nil {
		return nil, convertErr(err)
	}
	return &Response{r: r}, nil
}

// Reply answers an inbound Message: it writes one packet whose header id
// is msg.Field.FieldID, the id the peer's Response is waiting on.
func (c *Conn) Reply(msg Message, packetType ID, specs []FieldSpec) error {
	return convertErr(c.c.Reply(msg.Field.FieldID, packetType, specs))
}

// Recv waits for the next inbound message on the primary stream — one
// not captured by any active Response and not auto-consumed by the demux.
func (c *Conn) Recv(ctx context.Context) (Message, error) {
	item, err := c.c.Recv(ctx)
	return item, convertErr(err)
}

// RecvField is Recv filtered to a field name.
func (c *Conn) RecvField(ctx context.Context, name ID) (Message, error) {
	item, err := c.c.RecvField(ctx, name)
	return item, convertErr(err)
}

// RecvFieldTyped is RecvField additionally filtered by packet type.
func (c *Conn) RecvFieldTyped(ctx context.Context, packetType, name ID) (Message, error) {
	item, err := c.c.RecvFieldTyped(ctx, packetType, name)
	return item, convertErr(err)
}

// Close cooperatively shuts the connection down. Idempotent.
func (c *Conn) Close() error { return c.c.Close() }

// WaitClosed blocks until the connection has finished closing or ctx is
// done, whichever comes first.
func (c *Conn) WaitClosed(ctx context.Context) error { return c.c.WaitClosed(ctx) }
