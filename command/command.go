// Package command implements the operator command loop: it reads one command
// per line from the console input and answers through the shared registry.
//
// Recognized commands are help, status, clear, exit and quit. Input is
// trimmed and case-folded; blank lines are ignored.
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cyberinferno/debugserver/console"
	"github.com/cyberinferno/debugserver/logger"
	"github.com/cyberinferno/debugserver/registry"
	"github.com/cyberinferno/debugserver/utils"
)

// RunningBanner is printed after the screen is cleared.
const RunningBanner = "[*] Debug server (running) - type 'help' for available commands"

const helpText = `
[*] Available commands:
    help    - show this help
    status  - show server status
    clear   - clear the screen
    exit    - stop the server and exit (alias: quit)
`

// Loop reads operator commands. All fields except Clearer and Log are
// required.
type Loop struct {
	In       io.Reader
	Registry *registry.Registry
	Clearer  console.Clearer
	Log      logger.Logger

	// Shutdown is called once when the operator asks to exit.
	Shutdown func()
}

// Run reads and executes commands until the operator exits, the input ends,
// a read fails or ctx is cancelled. A read error is logged only while the
// server is still running. The goroutine blocked on In is left behind when
// ctx is cancelled first.
//
// Parameters:
//   - ctx: Lifetime of the server
//
// Returns:
//   - Always nil; the loop ending never stops the server by itself
func (l *Loop) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(l.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil && ctx.Err() == nil && l.Registry.Running() {
				l.log().Error("command read error", logger.Field{Key: "error", Value: err})
			}
			return nil
		case line := <-lines:
			if ctx.Err() != nil {
				return nil
			}

			if l.Execute(line) {
				if l.Shutdown != nil {
					l.Shutdown()
				}
				return nil
			}
		}
	}
}

// Execute runs a single command line.
//
// Parameters:
//   - line: Raw input; surrounding whitespace and case are ignored
//
// Returns:
//   - true if the command asks the server to stop
func (l *Loop) Execute(line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))

	switch cmd {
	case "":
	case "help":
		l.Registry.Println(helpText)
	case "status":
		l.Registry.Render(writeStatus)
	case "clear":
		l.Registry.Render(l.clear)
	case "exit", "quit":
		return true
	default:
		l.Registry.Println(fmt.Sprintf("[!] Unknown command: '%s'. Type 'help' for available commands", cmd))
	}

	return false
}

func (l *Loop) clear(w io.Writer, _ registry.Snapshot) {
	if l.Clearer != nil {
		if err := l.Clearer.Clear(w); err != nil {
			l.log().Warn("clear screen failed", logger.Field{Key: "error", Value: err})
		}
	}

	_, _ = fmt.Fprintln(w, RunningBanner)
}

func (l *Loop) log() logger.Logger {
	if l.Log == nil {
		return logger.Nop()
	}

	return l.Log
}

func writeStatus(w io.Writer, s registry.Snapshot) {
	_, _ = fmt.Fprintf(w, `
[*] Server status:
    Listen address: %s
    Uptime: %s
    Current connections: %d client(s)
    Total connections: %d client(s)
    Total messages: %d message(s)

`, s.Addr, utils.FormatUptime(s.Uptime), s.ClientCount, s.TotalClients, s.TotalMessages)
}
