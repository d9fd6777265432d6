package ncp

import (
	"context"

	"github.com/crfsradio/ncp/internal/conn"
)

// Response is the handle returned by Send/SendPacket: an ordered stream of
// inbound fields whose packet acknowledges one of the ids allocated for
// that send. Its buffer has no size limit.
type Response struct {
	r *conn.Response
}

// Recv waits for the next matching inbound message in wire order.
func (r *Response) Recv(ctx context.Context) (Message, error) {
	item, err := r.r.Recv(ctx)
	return item, convertErr(err)
}

// RecvField waits for the next inbound message whose field name matches;
// other messages remain queued for a later Recv/RecvField call.
func (r *Response) RecvField(ctx context.Context, name ID) (Message, error) {
	item, err := r.r.RecvField(ctx, name)
	return item, convertErr(err)
}

// RecvFieldTyped is RecvField additionally filtered by packet type.
func (r *Response) RecvFieldTyped(ctx context.Context, packetType, name ID) (Message, error) {
	item, err := r.r.RecvFieldTyped(ctx, packetType, name)
	return item, convertErr(err)
}

// Close releases this Response without affecting the owning Conn.
func (r *Response) Close() { r.r.Close() }
