package tcpserver

import "context"

// TCPServerSession is implemented by each connection session. The server
// creates one per accepted connection and runs Handle in its own goroutine.
type TCPServerSession interface {
	// ID returns the session's identifier assigned by the server.
	ID() uint32

	// Handle runs the session's read loop until the peer goes away, an error
	// occurs or ctx is cancelled. Handle owns the connection and must close
	// it before returning.
	//
	// Parameters:
	//   - ctx: Cancelled when the server shuts down
	Handle(ctx context.Context)

	// Close closes the underlying connection, unblocking a pending read.
	// It must be safe to call concurrently with Handle and more than once.
	Close() error
}
