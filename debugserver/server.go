// Package debugserver wires the acceptor, the per-connection sessions, the
// shared registry and the operator command loop into one runnable server.
package debugserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/debugserver/command"
	"github.com/cyberinferno/debugserver/config"
	"github.com/cyberinferno/debugserver/console"
	"github.com/cyberinferno/debugserver/logger"
	"github.com/cyberinferno/debugserver/registry"
	"github.com/cyberinferno/debugserver/resolver"
	"github.com/cyberinferno/debugserver/session"
	"github.com/cyberinferno/debugserver/tcpserver"
)

// ErrAcceptorStopped is returned by Run when the accept loop ends without a
// shutdown having been requested.
var ErrAcceptorStopped = errors.New("acceptor stopped unexpectedly")

// Options configures a Server. Config, Console and Input are required.
type Options struct {
	Config  *config.Config
	Console io.Writer
	Input   io.Reader
	Logger  logger.Logger
	Clearer console.Clearer

	// Resolver, when set, adds reverse DNS names to connection lines.
	Resolver *resolver.Resolver
}

// Server is a debug server instance.
type Server struct {
	cfg      *config.Config
	log      logger.Logger
	registry *registry.Registry
	acceptor *tcpserver.TCPServer
	loop     *command.Loop
	resolver *resolver.Resolver

	exitRequested atomic.Bool
	stopOnce      sync.Once
	shutdown      context.CancelFunc
	mu            sync.Mutex
}

// New builds a Server from opts without binding anything.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		cfg:      opts.Config,
		log:      log,
		registry: registry.New(opts.Console),
		resolver: opts.Resolver,
	}

	s.acceptor = tcpserver.New("debug", opts.Config.Addr(), log.With(logger.Field{Key: "component", Value: "acceptor"}), s.newSession)
	s.loop = &command.Loop{
		In:       opts.Input,
		Registry: s.registry,
		Clearer:  opts.Clearer,
		Log:      log.With(logger.Field{Key: "component", Value: "command"}),
		Shutdown: s.requestExit,
	}

	return s
}

// Registry returns the server's shared state.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// ListenAddr returns the bound address, or nil before Start.
func (s *Server) ListenAddr() net.Addr {
	return s.acceptor.ListenAddr()
}

// Start binds the listener and starts accepting. On failure the stop
// banners are printed and the wrapped bind error is returned.
//
// Parameters:
//   - ctx: Lifetime of the server; cancelling it stops accepting
//
// Returns:
//   - nil, or the startup error
func (s *Server) Start(ctx context.Context) error {
	if err := s.acceptor.Start(ctx); err != nil {
		s.registry.Println(fmt.Sprintf("[!] Server failed to start: %v", err))
		s.Stop()
		return err
	}

	addr := s.displayAddr()
	s.registry.Start(addr)
	s.registry.Println(fmt.Sprintf("[*] Debug server started, listening on %s", addr))
	s.registry.Println("[*] Waiting for connections...")
	s.registry.Println("[*] Type 'help' for available commands")

	s.log.Info("debug server running", logger.Field{Key: "addr", Value: addr})
	return nil
}

// Run starts the server and blocks until the operator exits, ctx is
// cancelled (for example by an interrupt signal) or the accept loop fails,
// then stops the server.
//
// Parameters:
//   - ctx: Parent context; cancelling it shuts the server down
//
// Returns:
//   - nil on a requested shutdown, the startup error, or ErrAcceptorStopped
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.shutdown = cancel
	s.mu.Unlock()

	if err := s.Start(runCtx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-s.acceptor.Done():
			if gctx.Err() == nil {
				return ErrAcceptorStopped
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()

	if ctx.Err() != nil && !s.exitRequested.Load() {
		s.registry.Println("")
		s.registry.Println("[*] Interrupt received")
	}

	s.Stop()
	return err
}

// Stop shuts the server down: it clears the running flag, closes the
// listener and all sessions, waits up to the configured grace period and
// prints the stop banner, after which the console stays silent. Only the
// first call has an effect.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.registry.Println("")
		s.registry.Println("[*] Stopping server...")
		s.registry.Stop()

		s.mu.Lock()
		if s.shutdown != nil {
			s.shutdown()
		}
		s.mu.Unlock()

		s.acceptor.Stop(s.cfg.Server.GracePeriod)
		s.registry.Mute("[*] Server stopped")
	})
}

// requestExit is the command loop's shutdown hook.
func (s *Server) requestExit() {
	s.exitRequested.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown != nil {
		s.shutdown()
	}
}

// newSession counts the connection, prints its line and builds the session.
func (s *Server) newSession(id uint32, conn net.Conn) tcpserver.TCPServerSession {
	sess := session.New(id, conn, s.registry, s.log, s.cfg.Server.BufferSize)

	var name string
	if s.resolver != nil {
		name = s.resolver.Name(context.Background(), sess.Peer())
	}

	s.registry.ClientConnected(sess.Peer(), name)
	return sess
}

// displayAddr is the configured host with the bound port.
func (s *Server) displayAddr() string {
	if tcp, ok := s.acceptor.ListenAddr().(*net.TCPAddr); ok {
		return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(tcp.Port))
	}

	return s.cfg.Addr()
}
