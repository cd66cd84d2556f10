//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package trapprocessor

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func bindErrorKind(err error) BindErrorKind {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return AddressInUse
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return PermissionDenied
	default:
		return BindOther
	}
}

func socketControl(cfg ListenerConfig) func(network, address string, c syscall.RawConn) error {
	if !cfg.ReusePort {
		return nil
	}
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return fmt.Errorf("raw conn control: %w", err)
		}
		if sockErr != nil {
			return fmt.Errorf("set SO_REUSEPORT: %w", sockErr)
		}
		return nil
	}
}
