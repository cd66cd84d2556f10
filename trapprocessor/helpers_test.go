package trapprocessor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/require"

	"github.com/rexpark/Arduino-SNMP/logging"
	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

const (
	oidColdStart = "1.3.6.1.6.3.1.1.5.1"
	oidLinkDown  = "1.3.6.1.6.3.1.1.5.3"
	oidLinkUp    = "1.3.6.1.6.3.1.1.5.4"
)

// v1Trap builds an SNMPv1 trap message.
func v1Trap(t *testing.T, community string, generic int) []byte {
	t.Helper()
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version1,
		Community: community,
		PDUType:   gosnmp.Trap,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.2.2.1.1.3", Type: gosnmp.Integer, Value: 3},
		},
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:   ".1.3.6.1.4.1.8072.2.3",
			AgentAddress: "192.0.2.10",
			GenericTrap:  generic,
			Timestamp:    1200,
		},
	}
	b, err := pkt.MarshalMsg()
	require.NoError(t, err)
	return b
}

// v2cTrap builds an SNMPv2c trap carrying snmpTrapOID.0 = trapOID.
func v2cTrap(t *testing.T, community, trapOID string, requestID uint32) []byte {
	t.Helper()
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: community,
		PDUType:   gosnmp.SNMPv2Trap,
		RequestID: requestID,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(500)},
			{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: "." + trapOID},
		},
	}
	b, err := pkt.MarshalMsg()
	require.NoError(t, err)
	return b
}

func testConfig() ListenerConfig {
	cfg := DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.ReadTimeout = 50 * time.Millisecond
	return cfg
}

// startListener starts a listener and stops it when the test ends.
func startListener(t *testing.T, cfg ListenerConfig, reg *Registry, opts ...Option) *Listener {
	t.Helper()

	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	l, err := NewListener(cfg, reg, opts...)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))

	t.Cleanup(func() {
		l.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Join(ctx)
	})
	return l
}

// send writes each packet as one datagram to addr.
func send(t *testing.T, addr net.Addr, packets ...[]byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	for _, p := range packets {
		_, err := conn.Write(p)
		require.NoError(t, err)
	}
}

// recorder is a Handler that keeps every message it sees.
type recorder struct {
	mu   sync.Mutex
	msgs []*snmppdu.TrapMessage
	ctxs []context.Context
}

func (r *recorder) handle(ctx context.Context, msg *snmppdu.TrapMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	r.ctxs = append(r.ctxs, ctx)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) messages() []*snmppdu.TrapMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*snmppdu.TrapMessage(nil), r.msgs...)
}

// countingObserver records Observer events.
type countingObserver struct {
	mu         sync.Mutex
	received   int
	failed     int
	decoded    map[string]int
	dropped    map[string]int
	dispatched map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		decoded:    make(map[string]int),
		dropped:    make(map[string]int),
		dispatched: make(map[string]int),
	}
}

func (o *countingObserver) PacketReceived() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received++
}

func (o *countingObserver) TrapDecoded(version string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decoded[version]++
}

func (o *countingObserver) TrapDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[reason]++
}

func (o *countingObserver) TrapDispatched(route string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatched[route]++
}

func (o *countingObserver) HandlerFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

func (o *countingObserver) droppedFor(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[reason]
}

func (o *countingObserver) dispatchedFor(route string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dispatched[route]
}

func (o *countingObserver) failures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}
