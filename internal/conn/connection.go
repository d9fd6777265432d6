// Package conn implements the NCP connection state machine: the
// handshake, the demux loop that routes inbound fields to either the
// primary stream or a correlated Response, and the send path that frames
// outbound packets under a single serializing lock.
package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crfsradio/ncp/internal/protocol/field"
	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/packet"
	"github.com/crfsradio/ncp/internal/protocol/stream"
)

// ErrClosed is returned by send-family calls once the connection has
// closed.
var ErrClosed = errors.New("conn: connection closed")

// NetworkFault wraps a transport or framing failure observed by the
// reader task; it poisons the connection.
type NetworkFault struct{ Err error }

func (f *NetworkFault) Error() string { return fmt.Sprintf("conn: network fault: %v", f.Err) }
func (f *NetworkFault) Unwrap() error { return f.Err }

// AuthFailure reports a failed or mismatched handshake.
type AuthFailure struct{ Reason string }

func (f *AuthFailure) Error() string { return fmt.Sprintf("conn: authentication failed: %s", f.Reason) }

// FieldCommandError is raised at the consumer targeted by an ERRO
// conversion.
type FieldCommandError struct {
	Code       int32
	Detail     string
	PacketType ident.ID
	FieldName  ident.ID
}

func (e *FieldCommandError) Error() string {
	return fmt.Sprintf("conn: command error %d (%s/%s): %s", e.Code, e.PacketType, e.FieldName, e.Detail)
}

// Handshake and control vocabulary.
var (
	typeLINK = ident.ID{'L', 'I', 'N', 'K'}

	fieldHELO = ident.ID{'H', 'E', 'L', 'O'}
	fieldCCRE = ident.ID{'C', 'C', 'R', 'E'}
	fieldSCAR = ident.ID{'S', 'C', 'A', 'R'}
	fieldCARE = ident.ID{'C', 'A', 'R', 'E'}
	fieldSCON = ident.ID{'S', 'C', 'O', 'N'}
	fieldLINK = ident.ID{'L', 'I', 'N', 'K'}

	paramCIW = ident.ID{'C', 'I', 'W', ' '}
	paramSIW = ident.ID{'S', 'I', 'W', ' '}
	paramCAR = ident.ID{'C', 'A', 'R', ' '}

	paramERRO = ident.ID{'E', 'R', 'R', 'O'}
	paramERRC = ident.ID{'E', 'R', 'R', 'C'}
	paramWARN = ident.ID{'W', 'A', 'R', 'N'}
	paramWARC = ident.ID{'W', 'A', 'R', 'C'}
	paramACKN = ident.ID{'A', 'C', 'K', 'N'}
)

// Role distinguishes which side of the handshake a Conn plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// FieldSpec describes one field to send, prior to field id assignment.
type FieldSpec struct {
	Name   ident.ID
	TypeID ident.ID
	Params []field.Param
}

// Conn is one NCP connection, wrapping a single opaque transport.
type Conn struct {
	transport io.ReadWriteCloser
	opts      Options
	role      Role
	log       zerolog.Logger

	reader *stream.Reader

	sendMu sync.Mutex
	nextID uint32

	mu        sync.Mutex
	responses map[uint32]*Response
	primary   *Response

	userClosing bool
	closed      chan struct{}
}

// New constructs a Conn around transport without starting its reader
// task or running a handshake; callers drive both explicitly (Dial and
// the server accept loop compose them in the right order).
func New(transport io.ReadWriteCloser, role Role, opts Options, log zerolog.Logger) *Conn {
	return &Conn{
		transport: transport,
		opts:      opts,
		role:      role,
		log:       log,
		reader:    stream.New(transport),
		responses: make(map[uint32]*Response),
		primary:   newResponse(nil),
		closed:    make(chan struct{}),
	}
}

// Handshake runs the client or server side of the authentication exchange
// per role, honoring opts.HandshakeTimeout (0 = no deadline). When
// opts.AutoAuth is false it is a no-op; handshake-phase fields then flow
// to the application through the primary stream once StartReader runs.
func (c *Conn) Handshake(ctx context.Context) error {
	if !c.opts.AutoAuth {
		return nil
	}
	if c.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
		defer cancel()
	}
	switch c.role {
	case RoleClient:
		return c.clientHandshake(ctx)
	default:
		return c.serverHandshake(ctx)
	}
}

// StartReader launches the single reader task that owns all transport
// reads for the lifetime of the connection.
func (c *Conn) StartReader() {
	go c.readLoop()
}

// StartAutoLink launches the periodic LINK/LINK sender when opts.AutoLink
// is set. It is separate from StartReader so callers that skip the
// handshake or run without a background writer can opt out; Dial and the
// server accept loop start both together.
func (c *Conn) StartAutoLink() {
	if !c.opts.AutoLink {
		return
	}
	interval := c.opts.LinkInterval
	if interval <= 0 {
		interval = DefaultLinkInterval
	}
	go c.linkSendLoop(interval)
}

func (c *Conn) linkSendLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.sendLinkKeepalive()
		}
	}
}

// sendLinkKeepalive is the active half of the LINK/LINK keepalive: an
// unprompted send on a timer, as opposed to replyKeepalive's reply to an
// inbound one.
func (c *Conn) sendLinkKeepalive() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	id := c.allocID()
	if err := c.writeRaw(typeLINK, id, []field.Field{emptyField(fieldLINK)}); err != nil {
		c.log.Warn().Err(err).Msg("conn: auto-link send failed")
	}
}

func (c *Conn) allocID() uint32 {
	c.nextID++
	return c.nextID
}

// writeRaw frames and writes one packet under the send lock. Callers
// (handshake, keepalive reply, Send/SendPacket) must already hold sendMu.
func (c *Conn) writeRaw(packetType ident.ID, id uint32, fields []field.Field) error {
	pkt := packet.Packet{
		Type:      packetType,
		ID:        id,
		Timestamp: nowTimestamp(),
		Fields:    fields,
	}
	enc, err := packet.Encode(pkt)
	if err != nil {
		return err
	}
	_, err = c.transport.Write(enc)
	return err
}

func nowTimestamp() packet.Timestamp {
	now := time.Now()
	return packet.Timestamp{Seconds: int32(now.Unix()), Nanoseconds: int32(now.Nanosecond())}
}

func emptyField(name ident.ID) field.Field {
	return field.New(name, name, 0)
}

// SendPacket encodes one multi-field packet, allocating a distinct field
// id for each field, and returns a Response holding the full id set.
func (c *Conn) SendPacket(packetType ident.ID, specs []FieldSpec) (*Response, error) {
	if len(specs) == 0 {
		return nil, errors.New("conn: send requires at least one field")
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	ids := make([]uint32, len(specs))
	fields := make([]field.Field, len(specs))
	for i, s := range specs {
		id := c.allocID()
		ids[i] = id
		f := field.New(s.Name, s.TypeID, id)
		for _, p := range s.Params {
			if err := f.Set(p.ID, p.Value); err != nil {
				return nil, err
			}
		}
		fields[i] = f
	}

	resp := newResponse(ids)
	c.mu.Lock()
	for _, id := range ids {
		c.responses[id] = resp
	}
	c.mu.Unlock()

	// The packet's own header id only matters when it is itself a reply;
	// for an original request it carries the id of its first field (see
	// design notes on multi-field sends).
	if err := c.writeRaw(packetType, ids[0], fields); err != nil {
		c.mu.Lock()
		for _, id := range ids {
			delete(c.responses, id)
		}
		c.mu.Unlock()
		return nil, &NetworkFault{Err: err}
	}
	return resp, nil
}

// Send encodes a single-field packet and returns a Response holding
// {field_id}.
func (c *Conn) Send(packetType ident.ID, spec FieldSpec) (*Response, error) {
	return c.SendPacket(packetType, []FieldSpec{spec})
}

// Reply writes one packet whose header id is replyTo — the field id of
// the inbound field being answered (its Field.FieldID, not necessarily
// the enclosing packet's own id; see design notes on multi-field sends).
// This is the Go-idiomatic form of a back-reference to the field being
// answered: a non-owning handle used only to correlate a reply, exposed
// here as a Conn method rather than embedded in the immutable Message
// value itself.
func (c *Conn) Reply(replyTo uint32, packetType ident.ID, specs []FieldSpec) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	fields := make([]field.Field, len(specs))
	for i, s := range specs {
		f := field.New(s.Name, s.TypeID, c.allocID())
		for _, p := range s.Params {
			if err := f.Set(p.ID, p.Value); err != nil {
				return err
			}
		}
		fields[i] = f
	}
	if err := c.writeRaw(packetType, replyTo, fields); err != nil {
		return &NetworkFault{Err: err}
	}
	return nil
}

// Recv waits for the next inbound field on the primary stream — one not
// captured by any active Response and not auto-consumed by the demux.
func (c *Conn) Recv(ctx context.Context) (stream.Item, error) {
	return c.primary.Recv(ctx)
}

// RecvField is Recv filtered to a field name, on the primary stream.
func (c *Conn) RecvField(ctx context.Context, name ident.ID) (stream.Item, error) {
	return c.primary.RecvField(ctx, name)
}

// RecvFieldTyped is RecvField additionally filtered by packet type.
func (c *Conn) RecvFieldTyped(ctx context.Context, packetType, name ident.ID) (stream.Item, error) {
	return c.primary.RecvFieldTyped(ctx, packetType, name)
}

// Close cooperatively shuts the connection down: it closes the transport,
// which unblocks the reader task, which then releases every pending and
// future Recv/RecvField with a clean end-of-stream. Idempotent. Close
// waits for the reader task started by StartReader to finish, so it does
// not return on a Conn whose reader was never started.
func (c *Conn) Close() error {
	c.mu.Lock()
	already := c.userClosing
	c.userClosing = true
	c.mu.Unlock()
	if !already {
		_ = c.transport.Close()
	}
	<-c.closed
	return nil
}

// WaitClosed blocks until the connection has finished closing or ctx is
// done, whichever comes first.
func (c *Conn) WaitClosed(ctx context.Context) error {
	select {
	case <-c.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) readLoop() {
	for {
		item, err := c.reader.Next()
		if err != nil {
			c.teardown(err)
			return
		}
		c.demux(item)
	}
}

// teardown runs exactly once, when the reader task observes the transport
// close (readErr == io.EOF if it closed cleanly between packets). If the
// close was caller-initiated via Close, every pending consumer is
// released cleanly; otherwise readErr is propagated as the terminal fault
// on every Response and the primary stream.
func (c *Conn) teardown(readErr error) {
	c.mu.Lock()
	userClosing := c.userClosing
	c.mu.Unlock()

	var finalErr error
	if !userClosing {
		finalErr = &NetworkFault{Err: readErr}
		c.log.Warn().Err(readErr).Msg("conn: reader task faulted, closing connection")
		_ = c.transport.Close()
	}

	c.mu.Lock()
	responses := make([]*Response, 0, len(c.responses)+1)
	seen := make(map[*Response]struct{}, len(c.responses)+1)
	for _, r := range c.responses {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		responses = append(responses, r)
	}
	responses = append(responses, c.primary)
	c.responses = map[uint32]*Response{}
	c.mu.Unlock()

	for _, r := range responses {
		r.closeWith(finalErr)
	}

	close(c.closed)
}

// route returns the Response that owns id, falling back to the primary
// stream — the single lookup shared by the demux loop's normal delivery
// path and its ERRO-to-CommandError conversion.
func (c *Conn) route(id uint32) *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.responses[id]; ok {
		return r
	}
	return c.primary
}

func (c *Conn) demux(item stream.Item) {
	f := item.Field

	if item.Meta.Type == typeLINK && f.Name == fieldLINK {
		c.replyKeepalive()
		return
	}

	if c.opts.AutoErro {
		if msg, ok := f.Get(paramERRO); ok {
			codeVal, hasCode := f.Get(paramERRC)
			code := int32(0)
			if hasCode {
				code = codeVal.I32
			}
			if code != 0 {
				target := c.route(item.Meta.ID)
				target.pushErr(&FieldCommandError{
					Code:       code,
					Detail:     msg.STR,
					PacketType: item.Meta.Type,
					FieldName:  f.Name,
				})
				return
			}
		}
	}

	if c.opts.AutoWarn {
		if msg, ok := f.Get(paramWARN); ok {
			code := int32(0)
			if codeVal, hasCode := f.Get(paramWARC); hasCode {
				code = codeVal.I32
			}
			c.log.Debug().Str("field", f.Name.String()).Msg("conn: dispatching command warning")
			dispatchWarning(c.opts.WarnSink, CommandWarning{
				Code:       code,
				Detail:     msg.STR,
				PacketType: item.Meta.Type,
				FieldName:  f.Name,
			})
			return
		}
	}

	if c.opts.AutoAckn {
		if _, ok := f.Get(paramACKN); ok {
			if !c.opts.StrictAckFilter || len(f.Params) == 1 {
				return
			}
		}
	}

	c.route(item.Meta.ID).push(item)
}

func (c *Conn) replyKeepalive() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	id := c.allocID()
	if err := c.writeRaw(typeLINK, id, []field.Field{emptyField(fieldLINK)}); err != nil {
		c.log.Warn().Err(err).Msg("conn: keepalive reply failed")
	}
}
