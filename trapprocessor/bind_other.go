//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package trapprocessor

import (
	"errors"
	"io/fs"
	"syscall"
)

func bindErrorKind(err error) BindErrorKind {
	if errors.Is(err, fs.ErrPermission) {
		return PermissionDenied
	}
	return BindOther
}

func socketControl(cfg ListenerConfig) func(network, address string, c syscall.RawConn) error {
	if !cfg.ReusePort {
		return nil
	}
	return func(string, string, syscall.RawConn) error {
		return errors.New("reuse_port is not supported on this platform")
	}
}
