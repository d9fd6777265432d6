package ncp

import (
	"errors"
	"fmt"

	"github.com/crfsradio/ncp/internal/protocol/ident"
)

// NetworkError wraps a transport or framing failure: a closed socket, a
// read/write I/O error, or a desynchronized codec. It is always fatal to
// the connection that raised it.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("ncp: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthenticationError reports a failed or mismatched handshake.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ncp: authentication failed: %s", e.Reason)
}

// CommandError is raised at the consumer a matching ERRO field was
// targeted at, when auto_erro converts it. It never closes the connection.
type CommandError struct {
	Code       int32
	Detail     string
	PacketType ident.ID
	FieldName  ident.ID
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ncp: command error %d (%s/%s): %s", e.Code, e.PacketType, e.FieldName, e.Detail)
}

// CommandWarning is delivered to the configured warning sink; it is never
// returned as an error from a Conn or Response method.
type CommandWarning struct {
	Code       int32
	Detail     string
	PacketType ident.ID
	FieldName  ident.ID
}

func (w CommandWarning) String() string {
	return fmt.Sprintf("ncp: command warning %d (%s/%s): %s", w.Code, w.PacketType, w.FieldName, w.Detail)
}

// ErrConnectionClosed is returned by send-family calls (Send, SendPacket,
// Reply) once the connection has closed. Recv-family calls do not return
// it: after a caller-initiated Close they end with ErrResponseClosed, and
// after the peer or transport closed they end with a *NetworkError.
var ErrConnectionClosed = errors.New("ncp: connection closed")
