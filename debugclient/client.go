// Package debugclient sends diagnostic text to a debug server. The client
// connects lazily, reconnects after a failed write and retries a bounded
// number of times, so instrumented code can call Send without managing the
// connection.
package debugclient

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var (
	ErrClosed       = errors.New("client is closed")
	ErrNotConnected = errors.New("not connected")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // No connection; the next Send dials
	Connecting                          // Dial in progress
	Connected                           // Connection established
	Closed                              // Client closed and unusable
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The server address
	Timestamp time.Time       // When the change happened
	Error     error           // Non-nil if the change was caused by an error
}

// ConnectionStateHandler is called synchronously on every state change. It
// must not call back into the Client.
type ConnectionStateHandler func(event ConnectionStateEvent)

// Config holds the client settings.
type Config struct {
	// Address is the "host:port" of the debug server.
	Address string
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// WriteTimeout bounds each write; 0 means no timeout.
	WriteTimeout time.Duration
	// Retries is the number of attempts per Send, at least one.
	Retries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// LengthPrefix writes a 4-byte big-endian payload length before each
	// message.
	LengthPrefix bool
}

// DefaultConfig returns a Config for address with a 2s dial and write
// timeout, two attempts per send 100ms apart and no length prefix.
//
// Parameters:
//   - address: The "host:port" of the debug server
//
// Returns:
//   - The default Config
func DefaultConfig(address string) Config {
	return Config{
		Address:      address,
		DialTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		Retries:      2,
		RetryDelay:   100 * time.Millisecond,
	}
}

// Client sends messages to a debug server. It is safe for concurrent use;
// concurrent sends are serialized so messages are never interleaved.
type Client struct {
	config Config

	mu      sync.Mutex
	conn    net.Conn
	state   ConnectionState
	onState ConnectionStateHandler
}

// New creates a Client in Disconnected state. No connection is made until
// Connect or the first Send.
func New(config Config) *Client {
	if config.Retries < 1 {
		config.Retries = 1
	}

	return &Client{
		config: config,
		state:  Disconnected,
	}
}

// OnConnectionState registers the handler for state changes, replacing any
// previous one. Pass nil to clear it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// Connect dials the server if there is no live connection.
//
// Returns:
//   - nil when connected; ErrClosed or the dial error otherwise
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// Send writes data as one message. A missing connection is dialled first; a
// failed dial or write drops the connection and is retried after RetryDelay,
// up to Retries attempts in total.
//
// Parameters:
//   - data: The message bytes; not modified
//
// Returns:
//   - nil on success, ErrClosed, or the last attempt's error
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := c.frame(data)

	var lastErr error
	for attempt := 0; attempt < c.config.Retries; attempt++ {
		if attempt > 0 {
			c.mu.Unlock()
			time.Sleep(c.config.RetryDelay)
			c.mu.Lock()
		}

		if c.state == Closed {
			return ErrClosed
		}

		if err := c.connectLocked(); err != nil {
			lastErr = err
			continue
		}

		if err := c.writeLocked(payload); err != nil {
			lastErr = err
			c.dropLocked(err)
			continue
		}

		return nil
	}

	return fmt.Errorf("send to %s failed after %d attempt(s): %w", c.config.Address, c.config.Retries, lastErr)
}

// Sendf formats according to format and sends the result.
func (c *Client) Sendf(format string, args ...any) error {
	return c.Send([]byte(fmt.Sprintf(format, args...)))
}

// Close closes the connection and moves the client to Closed state.
// Idempotent.
//
// Returns:
//   - The error from closing the connection, if any
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return nil
	}

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	c.setStateLocked(Closed, nil)
	return err
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) connectLocked() error {
	if c.state == Closed {
		return ErrClosed
	}

	if c.conn != nil {
		return nil
	}

	c.setStateLocked(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setStateLocked(Disconnected, err)
		return fmt.Errorf("connect to %s: %w", c.config.Address, err)
	}

	c.conn = conn
	c.setStateLocked(Connected, nil)
	return nil
}

func (c *Client) writeLocked(payload []byte) error {
	conn := c.conn
	if conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	_, err := conn.Write(payload)
	return err
}

func (c *Client) dropLocked(cause error) {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	c.setStateLocked(Disconnected, cause)
}

func (c *Client) frame(data []byte) []byte {
	if !c.config.LengthPrefix {
		return data
	}

	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}

func (c *Client) setStateLocked(state ConnectionState, err error) {
	c.state = state

	if c.onState != nil {
		c.onState(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}
