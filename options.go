package ncp

import (
	"time"

	"github.com/crfsradio/ncp/internal/conn"
)

// Options are the settable connection options.
type Options struct {
	AutoAuth bool
	AutoErro bool
	AutoWarn bool
	AutoAckn bool

	// StrictAckFilter, when true, only drops a field that consists
	// solely of an ACKN parameter; when false (the default), any field
	// carrying an ACKN parameter at all is dropped.
	StrictAckFilter bool

	// AutoLink, when true (the default), sends a periodic empty LINK/LINK
	// field on LinkInterval for the life of the connection, on top of the
	// existing passive reply to the peer's own LINK/LINK.
	AutoLink bool

	// LinkInterval is the period between AutoLink sends. Zero means use
	// the library default (conn.DefaultLinkInterval).
	LinkInterval time.Duration

	RemoteHostname   string
	HandshakeTimeout time.Duration

	ClientIdentity string
	AuthResponse   string

	WarnSink func(CommandWarning)
}

// DefaultOptions returns all four auto_* flags on, AutoLink on, with no
// handshake deadline.
func DefaultOptions() Options {
	d := conn.DefaultOptions()
	return Options{
		AutoAuth:         d.AutoAuth,
		AutoErro:         d.AutoErro,
		AutoWarn:         d.AutoWarn,
		AutoAckn:         d.AutoAckn,
		AutoLink:         d.AutoLink,
		LinkInterval:     d.LinkInterval,
		ClientIdentity:   d.ClientIdentity,
		AuthResponse:     d.AuthResponse,
		HandshakeTimeout: d.HandshakeTimeout,
	}
}

func (o Options) toInternal() conn.Options {
	return conn.Options{
		AutoAuth:         o.AutoAuth,
		AutoErro:         o.AutoErro,
		AutoWarn:         o.AutoWarn,
		AutoAckn:         o.AutoAckn,
		StrictAckFilter:  o.StrictAckFilter,
		AutoLink:         o.AutoLink,
		LinkInterval:     o.LinkInterval,
		RemoteHostname:   o.RemoteHostname,
		HandshakeTimeout: o.HandshakeTimeout,
		ClientIdentity:   o.ClientIdentity,
		AuthResponse:     o.AuthResponse,
		WarnSink: func(w conn.CommandWarning) {
			if o.WarnSink != nil {
				o.WarnSink(CommandWarning{
					Code:       w.Code,
					Detail:     w.Detail,
					PacketType: w.PacketType,
					FieldName:  w.FieldName,
				})
			}
		},
	}
}
