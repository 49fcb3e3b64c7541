// Package console provides the operator console the debug server prints to:
// a stdout that understands ANSI sequences on every platform, screen clearing,
// and an in-memory console for capturing output.
package console

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// clearSequence moves the cursor home and erases the display.
const clearSequence = "\x1b[H\x1b[2J"

// Stdout returns os.Stdout wrapped so ANSI escape sequences are translated on
// Windows consoles.
func Stdout() io.Writer {
	return colorable.NewColorableStdout()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Clearer clears a console viewport.
type Clearer interface {
	Clear(w io.Writer) error
}

// ClearFunc adapts a function to Clearer.
type ClearFunc func(w io.Writer) error

// Clear implements Clearer.
func (f ClearFunc) Clear(w io.Writer) error {
	return f(w)
}

// ANSIClearer writes the ANSI clear-screen sequence when Enabled is true and
// does nothing otherwise, so redirected output stays free of escape codes.
type ANSIClearer struct {
	Enabled bool
}

// NewClearer returns an ANSIClearer enabled only when stdout is a terminal.
func NewClearer() ANSIClearer {
	return ANSIClearer{Enabled: IsTerminal(os.Stdout)}
}

// Clear implements Clearer.
func (c ANSIClearer) Clear(w io.Writer) error {
	if !c.Enabled {
		return nil
	}

	_, err := io.WriteString(w, clearSequence)
	return err
}

// Buffer is an in-memory console safe for concurrent writes and reads.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// Reset discards the buffered output.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Reset()
}
