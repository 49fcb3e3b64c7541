//go:build windows

package tcpserver

import "syscall"

// reuseAddr is a no-op on Windows, where SO_REUSEADDR allows port hijacking
// rather than TIME_WAIT reuse.
func reuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
