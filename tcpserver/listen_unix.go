//go:build !windows

package tcpserver

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets a restarted server bind while old connections linger in
// TIME_WAIT.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}

	return sockErr
}
