package ncp

import (
	"errors"
	"io"

	"github.com/crfsradio/ncp/internal/conn"
	"github.com/crfsradio/ncp/internal/protocol/field"
	"github.com/crfsradio/ncp/internal/protocol/ident"
	"github.com/crfsradio/ncp/internal/protocol/packet"
	"github.com/crfsradio/ncp/internal/protocol/stream"
	"github.com/crfsradio/ncp/internal/protocol/value"
)

// ID is a four-byte NCP identifier (packet type, field name, or
// parameter name).
type ID = ident.ID

// ParamValue is the ten-way typed union carried by a field parameter.
type ParamValue = value.Value

// Param pairs a parameter identifier with its value.
type Param = field.Param

// Field is one logical message: a name, a sender-assigned id, a type
// identifier, and an ordered parameter list.
type Field = field.Field

// FieldSpec describes one field to send, before field id assignment.
type FieldSpec = conn.FieldSpec

// Packet is the outermost framed unit, exposed for callers that want to
// build one directly rather than through Send/SendPacket.
type Packet = packet.Packet

// PacketMeta is the packet-level context an inbound Message is tagged
// with: the enclosing packet's type, id, and timestamp.
type PacketMeta = stream.Meta

// Message is one decoded field plus the metadata of the packet it
// arrived in: a back reference to the owning packet's type and
// timestamp.
type Message = stream.Item

func NewID(s string) (ID, error) { return ident.New(s) }

func I32(v int32) ParamValue  { return value.I32(v) }
func U32(v uint32) ParamValue { return value.U32(v) }
func STR(v string) ParamValue { return value.STR(v) }
func RAW(v []byte) ParamValue { return value.RAW(v) }

func ArrayI8(v []int64) ParamValue  { return value.ArrayI8(v) }
func ArrayU8(v []int64) ParamValue  { return value.ArrayU8(v) }
func ArrayI16(v []int64) ParamValue { return value.ArrayI16(v) }
func ArrayU16(v []int64) ParamValue { return value.ArrayU16(v) }
func ArrayI32(v []int64) ParamValue { return value.ArrayI32(v) }
func ArrayU32(v []int64) ParamValue { return value.ArrayU32(v) }

// NewField constructs an empty field with the given name, type, and id.
func NewField(name, typeID ID, fieldID uint32) Field {
	return field.New(name, typeID, fieldID)
}

// ErrResponseClosed is returned by Response.Recv family calls once a
// Response has drained and closed cleanly — end-of-stream, not a fault.
var ErrResponseClosed = io.EOF

// convertErr maps the internal/conn error taxonomy onto the public one at
// the package boundary.
func convertErr(err error) error {
	if err == nil {
		return nil
	}
	var fault *conn.NetworkFault
	if errors.As(err, &fault) {
		return &NetworkError{Err: fault.Err}
	}
	var auth *conn.AuthFailure
	if errors.As(err, &auth) {
		return &AuthenticationError{Reason: auth.Reason}
	}
	var cmdErr *conn.FieldCommandError
	if errors.As(err, &cmdErr) {
		return &CommandError{
			Code:       cmdErr.Code,
			Detail:     cmdErr.Detail,
			PacketType: cmdErr.PacketType,
			FieldName:  cmdErr.FieldName,
		}
	}
	if errors.Is(err, conn.ErrClosed) {
		return ErrConnectionClosed
	}
	if errors.Is(err, conn.ErrResponseClosed) {
		return ErrResponseClosed
	}
	return err
}
