package conn

import (
	"context"
	"errors"
	"sync"

	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/stream"
)

// ErrResponseClosed is returned by Recv/RecvField once a Response (or its
// owning Connection) has closed and its buffer has drained — a clean
// end-of-stream, not a fault.
var ErrResponseClosed = errors.New("conn: response closed")

// entry is either a decoded field or an out-of-band error raised for this
// consumer (an auto_erro conversion of an ERRO parameter). Errors are
// queued in wire order alongside fields rather than delivered out of band,
// so a caller draining a Response sees them exactly where the offending
// packet occurred.
type entry struct {
	item stream.Item
	err  error
}

// Response is the per-request inbound queue keyed by a set of outbound
// field ids. The primary inbound stream of a Connection is itself
// represented as a Response with an empty id set that the demux loop
// pushes its unmatched fallthrough onto.
type Response struct {
	ids map[uint32]struct{}

	mu       sync.Mutex
	buf      []entry
	closed   bool
	closeErr error
	notify   chan struct{}
}

func newResponse(ids []uint32) *Response {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &Response{ids: set, notify: make(chan struct{}, 1)}
}

// Owns reports whether id is in this Response's id set.
func (r *Response) Owns(id uint32) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *Response) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// push enqueues an inbound item. Called only from the reader task.
func (r *Response) push(item stream.Item) {
	r.mu.Lock()
	r.buf = append(r.buf, entry{item: item})
	r.mu.Unlock()
	r.signal()
}

// pushErr enqueues an out-of-band error (a CommandError conversion). It
// does not close the Response — later items still arrive normally.
func (r *Response) pushErr(err error) {
	r.mu.Lock()
	r.buf = append(r.buf, entry{err: err})
	r.mu.Unlock()
	r.signal()
}

// closeWith marks the Response closed, releasing any pending and future
// Recv/RecvField calls once the buffer drains. err is nil for a clean,
// caller- or connection-initiated close; non-nil for a propagated fault.
func (r *Response) closeWith(err error) {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.closeErr = err
	}
	r.mu.Unlock()
	r.signal()
}

// Close releases this Response's resources without affecting the owning
// Connection. Idempotent.
func (r *Response) Close() {
	r.closeWith(nil)
}

// Recv waits for and returns the next queued item in wire order.
func (r *Response) Recv(ctx context.Context) (stream.Item, error) {
	return r.recvMatch(ctx, nil)
}

// RecvField waits for the next queued item whose field name matches. Any
// out-of-band error queued ahead of it is returned first. Non-matching
// items already in the buffer are left in place — queued through — so a
// later Recv or RecvField call still observes them in wire order.
func (r *Response) RecvField(ctx context.Context, name ident.ID) (stream.Item, error) {
	return r.recvMatch(ctx, func(it stream.Item) bool { return it.Field.Name == name })
}

// RecvFieldTyped is RecvField additionally filtered by the enclosing
// packet's type identifier.
func (r *Response) RecvFieldTyped(ctx context.Context, packetType, name ident.ID) (stream.Item, error) {
	return r.recvMatch(ctx, func(it stream.Item) bool {
		return it.Meta.Type == packetType && it.Field.Name == name
	})
}

// recvMatch scans the buffer for the first entry that is either an
// out-of-band error or a field satisfying match (match == nil matches
// everything, i.e. plain Recv). Matching entries are removed; the rest
// stay queued for later calls.
func (r *Response) recvMatch(ctx context.Context, match func(stream.Item) bool) (stream.Item, error) {
	for {
		r.mu.Lock()
		for i, e := range r.buf {
			if e.err != nil || match == nil || match(e.item) {
				r.buf = append(r.buf[:i:i], r.buf[i+1:]...)
				r.mu.Unlock()
				if e.err != nil {
					return stream.Item{}, e.err
				}
				return e.item, nil
			}
		}
		if r.closed {
			err := r.closeErr
			r.mu.Unlock()
			if err != nil {
				return stream.Item{}, err
			}
			return stream.Item{}, ErrResponseClosed
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return stream.Item{}, ctx.Err()
		case <-r.notify:
		}
	}
}
