package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// DefaultKind registers the fallback handler when passed to Register.
const DefaultKind = "default"

var (
	// ErrInvalidHandler is returned for a nil handler or a kind that is
	// neither DefaultKind nor a dotted OID.
	ErrInvalidHandler = errors.New("invalid handler registration")

	// ErrRegistryFrozen is returned when registering after a listener
	// using the registry has started.
	ErrRegistryFrozen = errors.New("registry is frozen: register handlers before starting the listener")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("trap handler panicked")
)

// Handler receives one validated trap. ctx carries the listener's logging
// fields (see logging.WithFields) and is cancelled when the listener stops.
type Handler func(ctx context.Context, msg *snmppdu.TrapMessage)

// Result reports how Dispatch routed a message.
type Result int

const (
	// Dropped means no handler matched and no default was registered.
	Dropped Result = iota
	// Matched means the handler registered for the message kind ran.
	Matched
	// Default means the default handler ran.
	Default
)

func (r Result) String() string {
	switch r {
	case Matched:
		return RouteMatched
	case Default:
		return RouteDefault
	default:
		return "dropped"
	}
}

// Registry maps trap kinds to handlers. Kinds are notification OIDs as
// returned by snmppdu.TrapMessage.Kind; registering a kind twice replaces
// the earlier handler.
//
// A registry is frozen when the first listener using it starts, after which
// it is read-only and may be shared by later listeners.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler

	frozen atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to kind, or to the default slot when kind is DefaultKind.
// A leading dot on the OID is accepted.
func (r *Registry) Register(kind string, h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrInvalidHandler, kind)
	}
	if kind == DefaultKind {
		return r.RegisterDefault(h)
	}
	oid, err := snmppdu.ParseOID(kind)
	if err != nil {
		return fmt.Errorf("%w: kind %q: %v", ErrInvalidHandler, kind, err)
	}
	return r.set(oid.String(), h)
}

// RegisterOID binds h to the trap identified by oid.
func (r *Registry) RegisterOID(oid snmppdu.OID, h Handler) error {
	if len(oid) == 0 {
		return fmt.Errorf("%w: empty OID", ErrInvalidHandler)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrInvalidHandler, oid)
	}
	return r.set(oid.String(), h)
}

// RegisterDefault sets the handler used when no kind matches.
func (r *Registry) RegisterDefault(h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil default handler", ErrInvalidHandler)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	r.fallback = h
	return nil
}

func (r *Registry) set(kind string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	r.handlers[kind] = h
	return nil
}

// Kinds returns the registered kinds in sorted order, without the default.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// HasDefault reports whether a default handler is registered.
func (r *Registry) HasDefault() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback != nil
}

// Frozen reports whether registration is closed.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

func (r *Registry) freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Dispatch invokes exactly one handler for msg: the one registered for
// msg.Kind(), else the default, else none. A handler panic is recovered and
// returned wrapped in ErrHandlerPanic together with the route taken.
func (r *Registry) Dispatch(ctx context.Context, msg *snmppdu.TrapMessage) (result Result, err error) {
	h, result := r.route(msg.Kind())
	if h == nil {
		return Dropped, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	h(ctx, msg)
	return result, nil
}

func (r *Registry) route(kind string) (Handler, Result) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind != "" {
		if h, ok := r.handlers[kind]; ok {
			return h, Matched
		}
	}
	if r.fallback != nil {
		return r.fallback, Default
	}
	return nil, Dropped
}
