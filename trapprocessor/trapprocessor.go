// Package trapprocessor receives SNMP v1 and v2c traps over UDP, validates
// them against the configured community and versions, and dispatches each
// one to a single registered handler.
//
// Handlers are registered per trap kind (the notification OID) or as the
// default, before the listener starts:
//
//	registry := trapprocessor.NewRegistry()
//	_ = registry.RegisterDefault(func(ctx context.Context, msg *snmppdu.TrapMessage) {
//		logger.InfoContext(ctx, "trap", "trap", msg)
//	})
//	_ = registry.Register("1.3.6.1.6.3.1.1.5.3", onLinkDown)
//
//	listener, err := trapprocessor.New(map[string]any{
//		"listener": map[string]any{
//			"port":      1062,
//			"community": "public",
//		},
//	}, registry)
//	if err != nil {
//		return err
//	}
//	if err := listener.Start(ctx); err != nil {
//		return err
//	}
//	defer listener.Stop()
//	return listener.Join(ctx)
//
// Decode and validation failures are logged, counted through the Observer
// and skipped. Dispatch is synchronous in the receive loop unless a worker
// pool is configured, so handlers see traps in arrival order by default.
package trapprocessor

import "fmt"

// New parses configObj with ParseConfig and returns a Listener for it.
func New(configObj any, registry *Registry, opts ...Option) (*Listener, error) {
	cfg, err := ParseConfig(configObj)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	listener, err := NewListener(cfg, registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	return listener, nil
}
