package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rexpark/Arduino-SNMP/logging"
	"github.com/rexpark/Arduino-SNMP/metrics"
	"github.com/rexpark/Arduino-SNMP/snmppdu"
	"github.com/rexpark/Arduino-SNMP/snmptranslate"
	"github.com/rexpark/Arduino-SNMP/trapprocessor"
)

const oidLinkDown = "1.3.6.1.6.3.1.1.5.3"

type trapRecorder struct {
	mu   sync.Mutex
	msgs []*snmppdu.TrapMessage
}

func (r *trapRecorder) handle(_ context.Context, msg *snmppdu.TrapMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *trapRecorder) communities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Community)
	}
	return out
}

func (r *trapRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Kind())
	}
	return out
}

func localConfig() trapprocessor.ListenerConfig {
	cfg := trapprocessor.DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.ReadTimeout = 50 * time.Millisecond
	return cfg
}

// sendTrap sends one trap to the service's current address.
func sendTrap(svc *service, version, community string, spec trapSpec) {
	GinkgoHelper()
	addr := svc.addr()
	Expect(addr).NotTo(BeNil())

	sender, err := newTrapSender(version, community, time.Second, 0, []string{addr.String()})
	Expect(err).NotTo(HaveOccurred())

	spec.version = version
	trap, err := spec.build(100)
	Expect(err).NotTo(HaveOccurred())
	Expect(sender.Send(trap)).To(Succeed())
}

var _ = Describe("service", func() {
	var (
		rec       *trapRecorder
		collector *metrics.Collector
		svc       *service
		reloads   reloadQueue
		runErr    chan error
	)

	v2c := trapSpec{trapOID: oidLinkDown}
	v1 := trapSpec{enterprise: defaultEnterprise, agentAddress: "192.0.2.7", generic: int(snmppdu.LinkUp)}

	BeforeEach(func() {
		rec = &trapRecorder{}
		collector = metrics.NewCollector(prometheus.NewRegistry())

		registry := trapprocessor.NewRegistry()
		Expect(registry.RegisterDefault(rec.handle)).To(Succeed())

		svc = newService(registry, collector, logging.Discard())
		reloads = make(reloadQueue, 1)
		runErr = make(chan error, 1)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { runErr <- svc.run(ctx, localConfig(), reloads) }()

		DeferCleanup(func() {
			cancel()
			Eventually(runErr, 5*time.Second).Should(Receive(BeNil()))
		})

		Eventually(svc.addr).ShouldNot(BeNil())
	})

	It("delivers v1 and v2c traps sent by the send command", func() {
		sendTrap(svc, "2c", "public", v2c)
		sendTrap(svc, "1", "public", v1)

		Eventually(rec.kinds).Should(ConsistOf(oidLinkDown, "1.3.6.1.6.3.1.1.5.4"))
		Eventually(func() float64 {
			return testutil.ToFloat64(collector.TrapsDispatched.WithLabelValues(trapprocessor.RouteDefault))
		}).Should(Equal(2.0))
	})

	It("drops traps with the wrong community", func() {
		sendTrap(svc, "2c", "private", v2c)
		sendTrap(svc, "2c", "public", v2c)

		Eventually(rec.communities).Should(Equal([]string{"public"}))
		Eventually(func() float64 {
			return testutil.ToFloat64(collector.TrapsDropped.WithLabelValues(trapprocessor.DropCommunity))
		}).Should(Equal(1.0))
	})

	It("restarts the listener when the configuration changes", func() {
		before := svc.addr().String()

		next := localConfig()
		next.Community = "ops"
		reloads.push(next)

		Eventually(func() string {
			if a := svc.addr(); a != nil {
				return a.String()
			}
			return before
		}, 5*time.Second).ShouldNot(Equal(before))

		sendTrap(svc, "2c", "public", v2c)
		sendTrap(svc, "2c", "ops", v2c)
		Eventually(rec.communities).Should(Equal([]string{"ops"}))
	})

	It("ignores a reload that does not change the listener", func() {
		before := svc.addr()
		reloads.push(localConfig())

		Consistently(svc.addr, 300*time.Millisecond).Should(Equal(before))
	})

	It("keeps the previous configuration when the new one cannot be bound", func() {
		before := svc.addr().String()

		bad := localConfig()
		bad.BindAddress = "192.0.2.123"
		reloads.push(bad)

		// The previous configuration comes back on a new ephemeral port.
		Eventually(func() string {
			if a := svc.addr(); a != nil {
				return a.String()
			}
			return before
		}, 5*time.Second).ShouldNot(Equal(before))
		Expect(svc.addr().String()).To(HavePrefix("127.0.0.1:"))

		sendTrap(svc, "2c", "public", v2c)
		Eventually(rec.communities).Should(Equal([]string{"public"}))
	})
})

var _ = Describe("reloadQueue", func() {
	It("keeps only the latest configuration", func() {
		q := make(reloadQueue, 1)
		first := localConfig()
		second := localConfig()
		second.Community = "second"

		q.push(first)
		q.push(second)

		Expect(q).To(HaveLen(1))
		Expect((<-q).Community).To(Equal("second"))
	})
})

var _ = Describe("trapLogHandler", func() {
	It("writes one record per trap", func() {
		path := filepath.Join(GinkgoT().TempDir(), "traps.log")
		log, closer, err := logging.NewLogger(logging.Config{Output: path, Format: logging.FormatJSON})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closer.Close)

		msg := &snmppdu.TrapMessage{
			Version:   snmppdu.V2c,
			Community: "public",
			VarBinds: []snmppdu.VarBind{
				{OID: snmppdu.OIDSysUpTime, Value: snmppdu.Value{Type: snmppdu.TypeTimeTicks, Uint: 500}},
				{OID: snmppdu.OIDSnmpTrapOID, Value: snmppdu.Value{Type: snmppdu.TypeObjectIdentifier, OID: snmppdu.MustParseOID(oidLinkDown)}},
			},
		}
		ctx := logging.WithFields(context.Background(), "source", "192.0.2.1:161")
		trapLogHandler(log, snmptranslate.New())(ctx, msg)

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"trap"`))
		Expect(string(data)).To(ContainSubstring(`"kind":"` + oidLinkDown + `"`))
		Expect(string(data)).To(ContainSubstring(`"source":"192.0.2.1:161"`))
		Expect(string(data)).To(ContainSubstring(`"uptime":500`))
		Expect(string(data)).To(ContainSubstring(`"name":"linkDown"`))
		Expect(string(data)).To(ContainSubstring(`"bindings":"sysUpTime.0=5s, snmpTrapOID.0=linkDown"`))
	})
})
