// Package tcpserver implements the connection acceptor: it owns the listening
// socket, hands every accepted connection to a session running in its own
// goroutine, and tears everything down on shutdown.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/debugserver/logger"
)

// acceptRetryDelay is the pause after a failed Accept before trying again.
const acceptRetryDelay = 10 * time.Millisecond

var (
	// ErrAlreadyRunning is returned by Start on a running server.
	ErrAlreadyRunning = errors.New("server already running")
)

// NewSessionFunc creates the session for an accepted connection. It runs on
// the accept goroutine, before the session's own goroutine starts.
type NewSessionFunc func(id uint32, conn net.Conn) TCPServerSession

// TCPServer accepts TCP connections and runs one session per connection.
// Shutdown is driven by the context given to Start or by Stop.
type TCPServer struct {
	Logger     logger.Logger
	Name       string
	Addr       string
	NewSession NewSessionFunc

	listener net.Listener
	sessions sessionTable
	running  atomic.Bool
	nextID   atomic.Uint32
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopped  bool
}

// New creates a stopped TCPServer.
//
// Parameters:
//   - name: Name used in log lines
//   - addr: host:port to listen on
//   - log: Diagnostic logger
//   - newSession: Factory for per-connection sessions
//
// Returns:
//   - A TCPServer ready to Start
func New(name, addr string, log logger.Logger, newSession NewSessionFunc) *TCPServer {
	return &TCPServer{
		Logger:     log,
		Name:       name,
		Addr:       addr,
		NewSession: newSession,
	}
}

// Start binds Addr with address reuse enabled and starts the accept loop in a
// goroutine. Cancelling ctx stops accepting and signals every session.
//
// Parameters:
//   - ctx: Lifetime of the server
//
// Returns:
//   - ErrAlreadyRunning, or a wrapped error if listening fails
func (s *TCPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%s: %w", s.Name, ErrAlreadyRunning)
	}

	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "addr", Value: s.Addr}, logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.done = make(chan struct{})
	s.stopped = false
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})

	// closing the listener is what unblocks Accept
	go func() {
		<-sctx.Done()
		s.running.Store(false)
		_ = ln.Close()
	}()

	go s.AcceptLoop(sctx)

	return nil
}

// ListenAddr returns the bound address, which differs from Addr when Addr
// uses port 0. It returns nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Running reports whether the accept loop is active.
func (s *TCPServer) Running() bool {
	return s.running.Load()
}

// Done is closed when the accept loop has exited. It returns nil before Start.
func (s *TCPServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}

// Stop cancels the server, closes the listener and every live session, then
// waits up to grace for the session goroutines. Sessions still running after
// grace are abandoned. Safe to call on a stopped server.
//
// Parameters:
//   - grace: Upper bound on the wait for sessions
//
// Returns:
//   - true if every session finished within grace
func (s *TCPServer) Stop(grace time.Duration) bool {
	s.mu.Lock()
	cancel := s.cancel
	ln := s.listener
	done := s.done
	stopped := s.stopped
	s.stopped = true
	s.mu.Unlock()

	if cancel == nil || stopped {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return true
	}

	s.running.Store(false)
	cancel()
	_ = ln.Close()

	// no new sessions may be added once we start waiting on s.wg
	select {
	case <-done:
	case <-time.After(grace):
	}

	s.sessions.rangeAll(func(_ uint32, session TCPServerSession) bool {
		_ = session.Close()
		return true
	})

	finished := waitTimeout(&s.wg, grace)
	if !finished {
		s.Logger.Warn(fmt.Sprintf("%s server abandoned sessions after grace period", s.Name),
			logger.Field{Key: "sessions", Value: s.SessionCount()},
			logger.Field{Key: "grace", Value: grace.String()})
	}

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
	return finished
}

// GetSession returns the live session with the given id, if any.
func (s *TCPServer) GetSession(id uint32) (TCPServerSession, bool) {
	return s.sessions.get(id)
}

// SessionCount returns the number of live sessions.
func (s *TCPServer) SessionCount() int {
	return s.sessions.len()
}

// AcceptLoop accepts connections until ctx is cancelled. Each connection gets
// the next session ID, a session from NewSession and its own goroutine.
// Accept errors while running are logged and the loop continues.
func (s *TCPServer) AcceptLoop(ctx context.Context) {
	defer close(s.done)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || ctx.Err() != nil {
				return
			}

			if errors.Is(err, net.ErrClosed) {
				s.Logger.Error(fmt.Sprintf("%s server listener closed unexpectedly", s.Name), logger.Field{Key: "error", Value: err})
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			time.Sleep(acceptRetryDelay)
			continue
		}

		id := s.nextID.Add(1)
		session := s.NewSession(id, conn)
		s.sessions.store(id, session)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sessions.delete(id)
			session.Handle(ctx)
		}()
	}
}

// waitTimeout waits for wg, giving up after d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
