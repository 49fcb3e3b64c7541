// Package registry holds the process-wide state of the debug server: the
// running flag, connection and message counters, the start time and the
// operator console. A single mutex guards all of it, so counter updates and
// the lines printed about them never interleave across sessions.
package registry

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cyberinferno/debugserver/utils"
)

// DisconnectReason tells ClientDisconnected which line to print.
type DisconnectReason int

const (
	PeerClosed DisconnectReason = iota // peer closed the connection (zero-length read)
	PeerReset                          // connection reset by peer
	ReadFailed                         // any other read error
	Shutdown                           // server is shutting down; nothing is printed
)

// String returns a human-readable name for the reason.
func (r DisconnectReason) String() string {
	switch r {
	case PeerClosed:
		return "peer closed"
	case PeerReset:
		return "connection reset"
	case ReadFailed:
		return "read failed"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of the counters taken under the lock.
type Snapshot struct {
	Running       bool
	Addr          string
	StartTime     time.Time
	Uptime        time.Duration
	ClientCount   int
	TotalClients  int
	TotalMessages int
}

// Registry is the shared state of one server. The zero value is not usable;
// create one with New.
type Registry struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	running       bool
	muted         bool
	addr          string
	startTime     time.Time
	clientCount   int
	totalClients  int
	totalMessages int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a Registry printing to out.
//
// Parameters:
//   - out: The operator console
//   - opts: Optional settings
//
// Returns:
//   - A stopped Registry with zeroed counters
func New(out io.Writer, opts ...Option) *Registry {
	r := &Registry{
		out: out,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start marks the server as running on addr and records the start time.
func (r *Registry) Start(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = true
	r.muted = false
	r.addr = addr
	r.startTime = r.now()
}

// Stop clears the running flag.
//
// Returns:
//   - true if the server was running before the call
func (r *Registry) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	was := r.running
	r.running = false
	return was
}

// Running reports whether the server is running.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.running
}

// Mute prints the final lines and then discards every later console write,
// so nothing can appear after the stop banner.
//
// Parameters:
//   - lines: Lines to print before muting
func (r *Registry) Mute(lines ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range lines {
		r.printlnLocked(line)
	}

	r.muted = true
}

// Println prints one line to the console under the lock.
func (r *Registry) Println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printlnLocked(line)
}

// Printf formats and prints to the console under the lock. No newline is
// appended.
func (r *Registry) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.muted {
		_, _ = fmt.Fprintf(r.out, format, args...)
	}
}

// Render takes a snapshot and calls fn with it and the console writer while
// holding the lock, so what fn prints matches the counters it saw. fn must
// not call back into the Registry.
//
// Parameters:
//   - fn: Function that prints using the snapshot
func (r *Registry) Render(fn func(w io.Writer, s Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.out
	if r.muted {
		w = io.Discard
	}

	fn(w, r.snapshotLocked())
}

// Snapshot returns a consistent copy of the counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

// ClientConnected counts a newly accepted connection and prints the
// connection line. name, when non-empty, is shown after the address.
//
// Parameters:
//   - peer: The remote address as host:port
//   - name: Optional resolved host name
func (r *Registry) ClientConnected(peer string, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clientCount++
	r.totalClients++

	label := peer
	if name != "" {
		label = fmt.Sprintf("%s (%s)", peer, name)
	}

	r.printlnLocked("")
	r.printlnLocked(fmt.Sprintf("[+] New connection: %s - %s", label, utils.DateTimeStamp(r.now())))
}

// ClientDisconnected decrements the live client count (never below zero) and
// prints the line matching reason. Shutdown prints nothing.
//
// Parameters:
//   - peer: The remote address as host:port
//   - reason: Why the session ended
//   - err: The read error for ReadFailed, otherwise ignored
func (r *Registry) ClientDisconnected(peer string, reason DisconnectReason, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clientCount = max(0, r.clientCount-1)

	switch reason {
	case PeerClosed:
		r.printlnLocked(fmt.Sprintf("[-] Client %s disconnected", peer))
	case PeerReset:
		r.printlnLocked(fmt.Sprintf("[-] Client %s disconnected (connection reset)", peer))
	case ReadFailed:
		r.printlnLocked(fmt.Sprintf("[!] Error handling client %s: %v", peer, err))
	}
}

// MessageReceived prints one received chunk and counts it. The header shows
// only the timestamp while exactly one client is connected and adds the
// peer address otherwise; the count is taken at print time.
//
// Parameters:
//   - peer: The remote address as host:port
//   - body: The decoded text or placeholder
func (r *Registry) MessageReceived(peer string, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := utils.ClockStamp(r.now())
	if r.clientCount == 1 {
		r.printlnLocked(fmt.Sprintf("[%s]:", ts))
	} else {
		r.printlnLocked(fmt.Sprintf("[%s] from %s:", ts, peer))
	}

	r.printlnLocked("  " + body)
	r.totalMessages++
}

func (r *Registry) snapshotLocked() Snapshot {
	s := Snapshot{
		Running:       r.running,
		Addr:          r.addr,
		StartTime:     r.startTime,
		ClientCount:   r.clientCount,
		TotalClients:  r.totalClients,
		TotalMessages: r.totalMessages,
	}

	if !r.startTime.IsZero() {
		s.Uptime = r.now().Sub(r.startTime)
	}

	return s
}

func (r *Registry) printlnLocked(line string) {
	if r.muted {
		return
	}

	_, _ = fmt.Fprintln(r.out, line)
}
