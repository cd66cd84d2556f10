package trapprocessor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rexpark/Arduino-SNMP/logging"
	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// State is a listener lifecycle state.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAlreadyStarted is returned by Start from any state but StateCreated.
	ErrAlreadyStarted = errors.New("listener already started")

	// ErrNotStarted is returned by Join on a listener that was never started.
	ErrNotStarted = errors.New("listener not started")
)

const (
	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

// packetConn is the part of *net.UDPConn the receive loop uses.
type packetConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger for listener events.
func WithLogger(logger logging.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logging.NewComponentLogger(logger, "trap_listener", "udp")
		}
	}
}

// WithObserver sets the receiver of listener metrics events.
func WithObserver(o Observer) Option {
	return func(l *Listener) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithWorkerPool dispatches traps on size goroutines instead of the receive
// loop. Arrival order is no longer preserved. size 0 disables the pool.
func WithWorkerPool(size int) Option {
	return func(l *Listener) {
		l.cfg.WorkerPool = WorkerPoolConfig{Enabled: size > 0, Size: size}
	}
}

// Listener receives SNMP traps on a UDP socket and dispatches them through
// a Registry. It moves through StateCreated, StateRunning, StateStopping
// and StateStopped, and cannot be restarted.
type Listener struct {
	cfg      ListenerConfig
	registry *Registry
	logger   logging.Logger
	observer Observer

	mu    sync.Mutex
	state State
	addr  net.Addr
	err   error

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewListener returns a listener in StateCreated.
func NewListener(cfg ListenerConfig, registry *Registry, opts ...Option) (*Listener, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}

	cfg.Versions = slices.Clone(cfg.Versions)
	l := &Listener{
		cfg:      cfg,
		registry: registry,
		observer: nopObserver{},
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid listener configuration: %w", err)
	}
	if l.logger == nil {
		l.logger = logging.NewComponentLogger(nil, "trap_listener", "udp")
	}
	return l, nil
}

// Config returns the listener configuration.
func (l *Listener) Config() ListenerConfig {
	cfg := l.cfg
	cfg.Versions = slices.Clone(cfg.Versions)
	return cfg
}

// State returns the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Addr returns the bound local address, or nil before a successful Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Done is closed when the listener reaches StateStopped.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Start binds the socket, freezes the registry and starts the receive
// loop. On a bind failure it returns a *BindError and the listener stays in
// StateCreated. Cancelling ctx has the same effect as Stop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateCreated {
		return ErrAlreadyStarted
	}

	conn, err := listenUDP(ctx, l.cfg)
	if err != nil {
		l.logger.Error("listener bind failed", "address", l.cfg.Address(), "error", err)
		return err
	}

	l.serve(ctx, conn)
	return nil
}

// serve moves the listener to StateRunning on conn and starts the receive
// loop. l.mu must be held.
func (l *Listener) serve(ctx context.Context, conn packetConn) {
	l.registry.freeze()
	l.addr = conn.LocalAddr()
	l.state = StateRunning

	var pool *workerPool
	if l.cfg.WorkerPool.Enabled {
		pool = newWorkerPool(l.cfg.WorkerPool.Size, l.dispatch)
		pool.start()
	}

	runCtx, cancel := context.WithCancel(ctx)
	go l.run(runCtx, cancel, conn, pool)

	versions := make([]string, len(l.cfg.Versions))
	for i, v := range l.cfg.Versions {
		versions[i] = v.String()
	}
	l.logger.Info("listener started",
		"address", l.addr.String(),
		"versions", strings.Join(versions, ","),
		"kinds", len(l.registry.Kinds()),
		"default_handler", l.registry.HasDefault(),
		"worker_pool", l.cfg.WorkerPool.Enabled,
	)
}

// Stop asks the receive loop to exit after its current receive call. It is
// safe to call more than once and from any goroutine. Stopping a listener
// that was never started moves it straight to StateStopped.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateCreated:
		l.state = StateStopped
		l.stopOnce.Do(func() { close(l.stopCh) })
		close(l.done)
	case StateRunning:
		l.state = StateStopping
		l.stopOnce.Do(func() { close(l.stopCh) })
	}
}

// Join blocks until the receive loop has exited. It returns nil after a
// clean stop, the socket error that ended the loop otherwise, or ctx.Err()
// if ctx is done first.
func (l *Listener) Join(ctx context.Context) error {
	if l.State() == StateCreated {
		return ErrNotStarted
	}

	select {
	case <-l.done:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the receive loop. It owns conn and closes it on exit.
func (l *Listener) run(ctx context.Context, cancel context.CancelFunc, conn packetConn, pool *workerPool) {
	var (
		fatal   error
		backoff time.Duration
	)

	defer func() {
		if pool != nil {
			pool.stop()
		}
		cancel()
		if err := conn.Close(); err != nil && !isConnectionClosedError(err) {
			l.logger.Warn("failed to close listener socket", "error", err)
		}

		l.mu.Lock()
		l.state = StateStopped
		l.err = fatal
		l.mu.Unlock()
		close(l.done)

		if fatal != nil {
			l.logger.Error("listener stopped", "address", conn.LocalAddr().String(), "error", fatal)
			return
		}
		l.logger.Info("listener stopped", "address", conn.LocalAddr().String())
	}()

	buffer := make([]byte, l.cfg.BufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			if isConnectionClosedError(err) {
				fatal = fmt.Errorf("listener socket closed: %w", err)
				return
			}
			l.logger.Warn("failed to set read deadline", "error", err)
		}

		n, from, err := conn.ReadFromUDPAddrPort(buffer)
		switch {
		case err == nil:
			backoff = 0
			l.handlePacket(ctx, buffer[:n], from, pool)
		case isTimeoutError(err):
			backoff = 0
		case isConnectionClosedError(err):
			fatal = fmt.Errorf("listener socket closed: %w", err)
			return
		default:
			backoff = nextReadBackoff(backoff)
			l.logger.Warn("failed to read packet", "error", err, "retry_in", backoff)
			l.wait(ctx, backoff)
		}

		if l.stopRequested(ctx) {
			return
		}
	}
}

// nextReadBackoff doubles d within [minReadBackoff, maxReadBackoff].
func nextReadBackoff(d time.Duration) time.Duration {
	return min(max(2*d, minReadBackoff), maxReadBackoff)
}

// wait sleeps for d or until a stop is requested.
func (l *Listener) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-l.stopCh:
	case <-ctx.Done():
	}
}

func (l *Listener) stopRequested(ctx context.Context) bool {
	select {
	case <-l.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// handlePacket decodes and validates one datagram and hands it to the
// registry, directly or through the pool. Failures are logged and counted;
// none of them stop the loop.
func (l *Listener) handlePacket(ctx context.Context, packet []byte, from netip.AddrPort, pool *workerPool) {
	source := netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

	l.observer.PacketReceived()
	l.logger.DebugContext(ctx, "trap received", "source", source.String(), "bytes", len(packet))

	msg, err := snmppdu.Decode(packet)
	if err != nil {
		l.observer.TrapDropped(DropDecode)
		l.logger.WarnContext(ctx, "trap decode failed", "source", source.String(), "error", err)
		return
	}
	msg.Source = source
	msg.ReceivedAt = time.Now()

	l.observer.TrapDecoded(msg.Version.String())
	l.logger.DebugContext(ctx, "trap decoded", "trap", msg)

	if err := Validate(msg, l.cfg); err != nil {
		l.observer.TrapDropped(dropReason(err))
		l.logger.WarnContext(ctx, "trap validation failed",
			"source", source.String(),
			"version", msg.Version.String(),
			"error", err,
		)
		return
	}

	if pool != nil {
		if err := pool.submit(ctx, l.stopCh, msg); err != nil {
			l.logger.WarnContext(ctx, "trap not queued", "source", source.String(), "error", err)
		}
		return
	}
	l.dispatch(ctx, msg)
}

func (l *Listener) dispatch(ctx context.Context, msg *snmppdu.TrapMessage) {
	ctx = logging.WithFields(ctx, "source", msg.Source.String(), "trap_kind", msg.Kind())

	start := time.Now()
	result, err := l.registry.Dispatch(ctx, msg)
	elapsed := time.Since(start)

	if err != nil {
		l.observer.HandlerFailed()
		l.logger.ErrorContext(ctx, "trap dispatch error", "route", result.String(), "error", err)
	}
	if result == Dropped {
		l.observer.TrapDropped(DropNoHandler)
		l.logger.DebugContext(ctx, "trap dropped", "reason", DropNoHandler)
		return
	}
	l.observer.TrapDispatched(result.String(), elapsed)
}

// isConnectionClosedError checks if the error indicates a closed connection.
func isConnectionClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

// isTimeoutError checks if the error is a network timeout.
func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
