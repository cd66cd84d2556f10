package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// BindErrorKind classifies socket bind failures.
type BindErrorKind int

const (
	BindOther BindErrorKind = iota
	AddressInUse
	PermissionDenied
)

func (k BindErrorKind) String() string {
	switch k {
	case AddressInUse:
		return "address in use"
	case PermissionDenied:
		return "permission denied"
	default:
		return "bind failed"
	}
}

// BindError is returned by Start when the UDP socket cannot be opened. The
// listener stays in StateCreated.
type BindError struct {
	Kind BindErrorKind
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

var errUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

// listenUDP opens the listener socket, applying socket options through the
// ListenConfig control hook.
func listenUDP(ctx context.Context, cfg ListenerConfig) (*net.UDPConn, error) {
	addr := cfg.Address()
	lc := net.ListenConfig{Control: socketControl(cfg)}

	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, &BindError{Kind: bindErrorKind(err), Addr: addr, Err: err}
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, &BindError{Addr: addr, Err: errors.Join(errUnexpectedConnType, closeErr)}
	}
	return conn, nil
}
