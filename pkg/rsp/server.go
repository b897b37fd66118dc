package rsp

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/tracedbg/rspd/pkg/arch"
	"github.com/tracedbg/rspd/pkg/trace"
)

// Server accepts one debugger connection at a time and serves a fresh
// Session per connection, exactly the "single serial connection, listener
// stays open for reconnects" model of spec §4.G — grounded on
// rpccommon.ServerImpl.Run's accept loop with AcceptMulti forced off.
type Server struct {
	listener net.Listener
	cap      arch.Capability
	seq      trace.Sequence
	log      *logrus.Entry
}

// NewServer binds addr and returns a Server ready to Run. The caller owns
// the returned listener's lifetime through Close.
func NewServer(addr string, cap arch.Capability, seq trace.Sequence, log *logrus.Entry) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: l, cap: cap, seq: seq, log: log}, nil
}

// Addr returns the bound local address, useful when the caller passed
// port 0 for an ephemeral listener (tests).
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Run accepts and serves connections one at a time until the listener is
// closed, at which point it returns nil. Each connection gets a brand new
// Session (cursor reset to -1, breakpoints cleared, per spec §3's Session
// lifecycle), so a debugger reconnect always starts the replay over.
func (s *Server) Run() error {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.serveOne(nc)
	}
}

func (s *Server) serveOne(nc net.Conn) {
	defer nc.Close()

	conn := NewConn(nc, s.log)
	sess, err := NewSession(conn, s.cap, s.seq, s.log)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("session init failed: %v", err)
		}
		conn.SendPacket([]byte("E01"))
		return
	}
	if err := sess.Serve(); err != nil {
		if s.log != nil {
			s.log.Debugf("session ended: %v", err)
		}
	}
}

