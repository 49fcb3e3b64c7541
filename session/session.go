// Package session implements the per-connection handler of the debug server.
// A session reads raw chunks from its connection, turns each chunk into
// printable text and reports it through the shared registry. Nothing is ever
// written back to the peer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"unicode/utf8"

	"github.com/cyberinferno/debugserver/logger"
	"github.com/cyberinferno/debugserver/registry"
)

// DefaultBufferSize is the largest chunk taken from the socket per read.
const DefaultBufferSize = 4096

// Decode returns data as text when it is valid UTF-8, and otherwise a
// placeholder naming the number of undecodable bytes.
//
// Parameters:
//   - data: One chunk as read from the socket
//
// Returns:
//   - The text, or "[Undecodable binary data: N bytes]"
func Decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	return fmt.Sprintf("[Undecodable binary data: %d bytes]", len(data))
}

// Session handles one accepted connection.
type Session struct {
	id       uint32
	conn     net.Conn
	peer     string
	registry *registry.Registry
	log      logger.Logger
	bufSize  int

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// New creates a session for conn. A non-positive bufSize uses
// DefaultBufferSize.
//
// Parameters:
//   - id: Session ID assigned by the acceptor
//   - conn: The accepted connection; the session owns it from now on
//   - reg: Shared state the session reports to
//   - log: Diagnostic logger
//   - bufSize: Read buffer size
//
// Returns:
//   - A Session ready to Handle
func New(id uint32, conn net.Conn, reg *registry.Registry, log logger.Logger, bufSize int) *Session {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	peer := conn.RemoteAddr().String()
	return &Session{
		id:       id,
		conn:     conn,
		peer:     peer,
		registry: reg,
		log:      log.With(logger.Field{Key: "session", Value: id}, logger.Field{Key: "peer", Value: peer}),
		bufSize:  bufSize,
	}
}

// ID implements tcpserver.TCPServerSession.
func (s *Session) ID() uint32 {
	return s.id
}

// Peer returns the remote address as host:port.
func (s *Session) Peer() string {
	return s.peer
}

// Close closes the connection. Only the first call does anything; later
// calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
	})

	return s.closeErr
}

// Handle reads until the peer closes, the connection fails or ctx is
// cancelled, then releases the connection. Every exit path decrements the
// live client count exactly once.
func (s *Session) Handle(ctx context.Context) {
	defer func() { _ = s.Close() }()

	// unblock the pending read on shutdown
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.log.Debug("session started")
	reason, err := s.readLoop(ctx)
	s.registry.ClientDisconnected(s.peer, reason, err)
	s.log.Debug("session ended", logger.Field{Key: "reason", Value: reason.String()})
}

func (s *Session) readLoop(ctx context.Context) (registry.DisconnectReason, error) {
	buf := make([]byte, s.bufSize)

	for {
		if ctx.Err() != nil {
			return registry.Shutdown, nil
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			s.registry.MessageReceived(s.peer, Decode(buf[:n]))
		}

		if err == nil {
			continue
		}

		switch {
		case ctx.Err() != nil || s.closed.Load():
			return registry.Shutdown, nil
		case errors.Is(err, io.EOF):
			return registry.PeerClosed, nil
		case errors.Is(err, syscall.ECONNRESET):
			return registry.PeerReset, err
		default:
			s.log.Warn("read failed", logger.Field{Key: "error", Value: err})
			return registry.ReadFailed, err
		}
	}
}
