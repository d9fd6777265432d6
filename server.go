package ncp

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"

	ncpconn "github.com/crfsradio/ncp/internal/conn"
	"github.com/crfsradio/ncp/internal/observability"
)

// Server accepts peer connections and runs the server side of the
// handshake on each before invoking a caller-supplied callback. One
// peer's failure never affects another's.
type Server struct {
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer constructs a Server with the given per-connection options.
func NewServer(opts Options) *Server {
	return &Server{
		opts:  opts,
		log:   observability.InitLogger("ncp-server"),
		conns: make(map[*Conn]struct{}),
	}
}

// Serve runs the accept loop against ln until ctx is done or Accept
// fails. Each accepted connection is handed to handle on its own
// goroutine after a successful handshake; handshake failures are logged
// and the peer is dropped without affecting handle's other invocations.
func (s *Server) Serve(ctx context.Context, ln net.Listener, handle func(*Conn)) error {
	go func() {
		<-ctx.Done()
		s.closeAll()
		_ = ln.Close()
	}()

	for {
		transport, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, transport, handle)
	}
}

func (s *Server) handleConn(ctx context.Context, transport net.Conn, handle func(*Conn)) {
	log := s.log.With().Str("remote", transport.RemoteAddr().String()).Logger()
	cc := ncpconn.New(transport, ncpconn.RoleServer, s.opts.toInternal(), log)
	if err := cc.Handshake(ctx); err != nil {
		log.Warn().Err(err).Msg("ncp: peer handshake failed")
		_ = transport.Close()
		return
	}
	cc.StartReader()
	cc.StartAutoLink()

	c := &Conn{c: cc}
	s.track(c)
	defer s.untrack(c)
	handle(c)
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}
