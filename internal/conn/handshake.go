package conn

import (
	"context"
	"fmt"

	"github.com/crfsradio/ncp/internal/protocol/field"
	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/stream"
	"github.com/crfsradio/ncp/internal/protocol/value"
)

// readOne reads a single handshake item off c.reader, cancellable via ctx.
// Next() has no native cancellation hook, so the read runs on its own
// goroutine; a timeout or cancellation abandons it, relying on the
// eventual transport close to unblock and discard it.
func (c *Conn) readOne(ctx context.Context) (stream.Item, error) {
	type result struct {
		item stream.Item
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		item, err := c.reader.Next()
		ch <- result{item, err}
	}()
	select {
	case <-ctx.Done():
		return stream.Item{}, ctx.Err()
	case res := <-ch:
		return res.item, res.err
	}
}

func (c *Conn) sendHandshakeField(f field.Field) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	id := c.allocID()
	return c.writeRaw(typeLINK, id, []field.Field{f})
}

func (c *Conn) expect(ctx context.Context, fieldName string) (stream.Item, error) {
	item, err := c.readOne(ctx)
	if err != nil {
		return stream.Item{}, &AuthFailure{Reason: fmt.Sprintf("waiting for %s: %v", fieldName, err)}
	}
	if item.Meta.Type != typeLINK {
		return stream.Item{}, &AuthFailure{Reason: fmt.Sprintf("expected LINK/%s, got packet type %s", fieldName, item.Meta.Type)}
	}
	return item, nil
}

// clientHandshake runs the client side of the authentication exchange:
// read HELO, send CCRE, read SCAR, send CARE, read SCON.
func (c *Conn) clientHandshake(ctx context.Context) error {
	if _, err := c.expectNamed(ctx, fieldHELO); err != nil {
		return err
	}

	ccre := field.New(fieldCCRE, fieldCCRE, 0)
	_ = ccre.Set(paramCIW, value.STR(c.opts.ClientIdentity))
	if err := c.sendHandshakeField(ccre); err != nil {
		return &AuthFailure{Reason: "sending CCRE: " + err.Error()}
	}

	if _, err := c.expectNamed(ctx, fieldSCAR); err != nil {
		return err
	}

	care := field.New(fieldCARE, fieldCARE, 0)
	_ = care.Set(paramCAR, value.STR(c.opts.AuthResponse))
	if err := c.sendHandshakeField(care); err != nil {
		return &AuthFailure{Reason: "sending CARE: " + err.Error()}
	}

	if _, err := c.expectNamed(ctx, fieldSCON); err != nil {
		return err
	}
	return nil
}

// serverHandshake runs the server side: issue HELO, read CCRE, issue
// SCAR, read CARE and verify it, confirm with SCON (or return an
// AuthFailure without sending it on mismatch; closing the transport is
// left to the caller).
func (c *Conn) serverHandshake(ctx context.Context) error {
	helo := field.New(fieldHELO, fieldHELO, 0)
	_ = helo.Set(paramSIW, value.STR(c.opts.RemoteHostname))
	if err := c.sendHandshakeField(helo); err != nil {
		return &AuthFailure{Reason: "sending HELO: " + err.Error()}
	}

	if _, err := c.expectNamed(ctx, fieldCCRE); err != nil {
		return err
	}

	scar := field.New(fieldSCAR, fieldSCAR, 0)
	_ = scar.Set(paramSIW, value.STR("challenge"))
	if err := c.sendHandshakeField(scar); err != nil {
		return &AuthFailure{Reason: "sending SCAR: " + err.Error()}
	}

	careItem, err := c.expectNamed(ctx, fieldCARE)
	if err != nil {
		return err
	}
	response, _ := careItem.Field.Get(paramCAR)
	if response.STR != c.opts.AuthResponse {
		return &AuthFailure{Reason: "CARE response mismatch"}
	}

	scon := field.New(fieldSCON, fieldSCON, 0)
	if err := c.sendHandshakeField(scon); err != nil {
		return &AuthFailure{Reason: "sending SCON: " + err.Error()}
	}
	return nil
}

func (c *Conn) expectNamed(ctx context.Context, name ident.ID) (stream.Item, error) {
	item, err := c.expect(ctx, name.String())
	if err != nil {
		return stream.Item{}, err
	}
	if item.Field.Name != name {
		return stream.Item{}, &AuthFailure{Reason: fmt.Sprintf("expected field %s, got %s", name, item.Field.Name)}
	}
	return item, nil
}
