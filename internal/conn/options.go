package conn

import (
	"time"

	"github.com/crfsradio/ncp/internal/protocol/ident"
)

// CommandWarning mirrors the root package's type without importing it
// (internal/conn sits below the public ncp package in the dependency
// graph); the WarnSink wrapper built by ncp.Options converts between the
// two at the public boundary.
type CommandWarning struct {
	Code       int32
	Detail     string
	PacketType ident.ID
	FieldName  ident.ID
}

// Options are the settable connection options.
type Options struct {
	AutoAuth bool
	AutoErro bool
	AutoWarn bool
	AutoAckn bool

	// StrictAckFilter: when true, only a field consisting solely of an
	// ACKN parameter is auto-dropped; when false (the default, matching
	// observed traffic), any field that carries an ACKN parameter at all
	// is dropped regardless of what else it carries.
	StrictAckFilter bool

	// AutoLink, when true, starts a background goroutine that sends an
	// empty LINK/LINK field on LinkInterval for the life of the
	// connection, independent of the passive reply a peer's own LINK/LINK
	// already gets. On by default.
	AutoLink bool

	// LinkInterval is the period between AutoLink sends. Zero means use
	// DefaultLinkInterval.
	LinkInterval time.Duration

	RemoteHostname   string
	HandshakeTimeout time.Duration

	ClientIdentity string
	AuthResponse   string

	WarnSink func(CommandWarning)
}

// DefaultLinkInterval is the AutoLink send period used when
// Options.LinkInterval is left at zero.
const DefaultLinkInterval = 30 * time.Second

// DefaultOptions returns all four auto_* flags on, AutoLink on with
// DefaultLinkInterval, no handshake deadline, and the library's canned
// identity/auth-response pair.
func DefaultOptions() Options {
	return Options{
		AutoAuth:         true,
		AutoErro:         true,
		AutoWarn:         true,
		AutoAckn:         true,
		AutoLink:         true,
		LinkInterval:     DefaultLinkInterval,
		ClientIdentity:   "ncp-client",
		AuthResponse:     "ncp-auth-ok",
		HandshakeTimeout: 0,
	}
}
