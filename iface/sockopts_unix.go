//go:build !windows
// +build !windows

package iface

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// syscallConn is satisfied by both *net.IPConn and the net.PacketConn
// ListenIP returns.
type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// setReceiveBuffer grows the raw socket's kernel receive buffer to
// bytes. DialIP and ListenIP pass a fixed 1 MiB; config.ReadBufferSize,
// which sizes the application-level ReadQueue, is not used here.
func setReceiveBuffer(pc syscallConn, bytes int) error {
	rc, err := pc.SyscallConn()
	if err != nil {
		return fmt.Errorf("iface: syscall conn: %w", err)
	}

	var opErr error
	err = rc.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	})
	if err != nil {
		return err
	}
	return opErr
}
