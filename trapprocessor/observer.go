package trapprocessor

import "time"

// Drop reasons passed to Observer.TrapDropped.
const (
	DropDecode    = "decode"
	DropCommunity = "community"
	DropVersion   = "version"
	DropNoHandler = "no_handler"
)

// Routes passed to Observer.TrapDispatched.
const (
	RouteMatched = "matched"
	RouteDefault = "default"
)

// Observer receives the listener's event stream. Methods are called from
// the receive loop (or pool workers) and must not block.
type Observer interface {
	PacketReceived()
	TrapDecoded(version string)
	TrapDropped(reason string)
	TrapDispatched(route string, elapsed time.Duration)
	HandlerFailed()
}

type nopObserver struct{}

func (nopObserver) PacketReceived()                      {}
func (nopObserver) TrapDecoded(string)                   {}
func (nopObserver) TrapDropped(string)                   {}
func (nopObserver) TrapDispatched(string, time.Duration) {}
func (nopObserver) HandlerFailed()                       {}
