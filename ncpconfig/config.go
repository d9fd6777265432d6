// Package ncpconfig loads Options from a TOML file with a
// default-overlay: unset keys keep ncp.DefaultOptions()'s value rather
// than zeroing it out. This is tooling for this repository's own
// examples and integration tests, not a requirement on downstream users
// of ncp.Dial/ncp.NewServer, which both take an Options value directly.
package ncpconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	ncp "github.com/crfsradio/ncp"
)

// fileConfig mirrors the file-settable subset of ncp.Options' fields for
// TOML decoding; AutoLink, LinkInterval and WarnSink are not read from the
// file.
type fileConfig struct {
	AutoAuth         bool   `toml:"auto_auth"`
	AutoErro         bool   `toml:"auto_erro"`
	AutoWarn         bool   `toml:"auto_warn"`
	AutoAckn         bool   `toml:"auto_ackn"`
	StrictAckFilter  bool   `toml:"strict_ack_filter"`
	RemoteHostname   string `toml:"remote_hostname"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	ClientIdentity   string `toml:"client_identity"`
	AuthResponse     string `toml:"auth_response"`
}

// Load decodes path into ncp.Options, starting from ncp.DefaultOptions()
// and overlaying only the keys the file actually sets.
func Load(path string) (ncp.Options, error) {
	opts := ncp.DefaultOptions()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ncp.Options{}, fmt.Errorf("ncpconfig: load %s: %w", path, err)
	}

	if meta.IsDefined("auto_auth") {
		opts.AutoAuth = raw.AutoAuth
	}
	if meta.IsDefined("auto_erro") {
		opts.AutoErro = raw.AutoErro
	}
	if meta.IsDefined("auto_warn") {
		opts.AutoWarn = raw.AutoWarn
	}
	if meta.IsDefined("auto_ackn") {
		opts.AutoAckn = raw.AutoAckn
	}
	if meta.IsDefined("strict_ack_filter") {
		opts.StrictAckFilter = raw.StrictAckFilter
	}
	if meta.IsDefined("remote_hostname") {
		opts.RemoteHostname = strings.TrimSpace(raw.RemoteHostname)
	}
	if meta.IsDefined("client_identity") {
		opts.ClientIdentity = strings.TrimSpace(raw.ClientIdentity)
	}
	if meta.IsDefined("auth_response") {
		opts.AuthResponse = strings.TrimSpace(raw.AuthResponse)
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return ncp.Options{}, fmt.Errorf("ncpconfig: handshake_timeout: %w", err)
		}
		opts.HandshakeTimeout = d
	}

	return opts, nil
}
