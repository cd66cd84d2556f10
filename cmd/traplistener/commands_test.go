package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"
)

// runCommand executes the command tree with args and returns stdout.
func runCommand(args ...string) (string, error) {
	GinkgoHelper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(GinkgoWriter)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

var _ = Describe("config command", func() {
	var configPath string

	BeforeEach(func() {
		configPath = filepath.Join(GinkgoT().TempDir(), "traplistener.yaml")
		Expect(os.WriteFile(configPath, []byte(`
listener:
  port: 2162
  community: ops
  versions: ["2c"]
  worker_pool:
    enabled: true
    size: 2
traplog:
  path: /var/log/traps.log
metrics:
  enabled: true
`), 0o600)).To(Succeed())
	})

	decode := func(out string) settingsView {
		GinkgoHelper()
		var view settingsView
		Expect(yaml.Unmarshal([]byte(out), &view)).To(Succeed())
		return view
	}

	It("prints schema defaults without a file", func() {
		out, err := runCommand("config", "--show-community")
		Expect(err).NotTo(HaveOccurred())

		view := decode(out)
		Expect(view.Listener.Port).To(Equal(1062))
		Expect(view.Listener.BindAddress).To(Equal("0.0.0.0"))
		Expect(view.Listener.Community).To(Equal("public"))
		Expect(view.Listener.Versions).To(Equal([]string{"1", "2c"}))
		Expect(view.Listener.ReadTimeout).To(Equal("1s"))
		Expect(view.Listener.BufferSize).To(Equal(65535))
		Expect(view.Logging.Level).To(Equal("info"))
		Expect(view.TrapLog.Path).To(Equal("traps.log"))
		Expect(view.Metrics).To(Equal(metricsSettings{Address: ":9162", Path: "/metrics"}))
	})

	It("merges the file and masks the community", func() {
		out, err := runCommand("config", "--config", configPath)
		Expect(err).NotTo(HaveOccurred())

		view := decode(out)
		Expect(view.Listener.Port).To(Equal(2162))
		Expect(view.Listener.Community).To(Equal("********"))
		Expect(view.Listener.Versions).To(Equal([]string{"2c"}))
		Expect(view.Listener.WorkerPool).To(Equal(workerPoolView{Enabled: true, Size: 2}))
		Expect(view.TrapLog.Path).To(Equal("/var/log/traps.log"))
		Expect(view.Metrics.Enabled).To(BeTrue())
	})

	It("lets flags override the file", func() {
		out, err := runCommand("config", "--config", configPath, "--show-community",
			"--port", "3162", "--community", "cli", "--log-file", "cli.log", "--log-level", "debug")
		Expect(err).NotTo(HaveOccurred())

		view := decode(out)
		Expect(view.Listener.Port).To(Equal(3162))
		Expect(view.Listener.Community).To(Equal("cli"))
		Expect(view.TrapLog.Path).To(Equal("cli.log"))
		Expect(view.Logging.Level).To(Equal("debug"))
	})

	It("rejects invalid values", func() {
		_, err := runCommand("config", "--port", "70000")
		Expect(err).To(MatchError(ContainSubstring("port must be between")))

		_, err = runCommand("config", "--log-level", "loud")
		Expect(err).To(MatchError(ContainSubstring("invalid log level")))

		bad := filepath.Join(GinkgoT().TempDir(), "bad.yaml")
		Expect(os.WriteFile(bad, []byte("listener:\n  versions: [\"3\"]\n"), 0o600)).To(Succeed())
		_, err = runCommand("config", "--config", bad)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("listen command", func() {
	It("fails before binding when flags are invalid", func() {
		_, err := runCommand("listen", "--port", "-1")
		Expect(err).To(MatchError(ContainSubstring("port must be between")))
	})
})

var _ = Describe("translate command", func() {
	It("names OIDs from the built-in table and MIB directories", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "RELAY-MIB.mib"), []byte(
			"RELAY-MIB DEFINITIONS ::= BEGIN\nrelayState OBJECT IDENTIFIER ::= { arduino 3 }\nEND\n",
		), 0o600)).To(Succeed())

		out, err := runCommand("translate", "--mib-dir", dir,
			".1.3.6.1.6.3.1.1.5.3", "1.3.6.1.4.1.36582.3.0", "2.25.7")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(
			"1.3.6.1.6.3.1.1.5.3 = IF-MIB::linkDown\n" +
				"1.3.6.1.4.1.36582.3.0 = RELAY-MIB::relayState.0\n" +
				"2.25.7 = 2.25.7\n",
		))
	})

	It("rejects an invalid OID", func() {
		_, err := runCommand("translate", "1.3.x")
		Expect(err).To(MatchError(ContainSubstring("invalid sub-identifier")))
	})
})

var _ = Describe("version command", func() {
	It("prints the build version", func() {
		out, err := runCommand("version")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("traplistener dev"))
	})
})

var _ = Describe("send command", func() {
	It("requires a target", func() {
		_, err := runCommand("send")
		Expect(err).To(MatchError(ContainSubstring("--target")))
	})

	DescribeTable("rejects bad arguments",
		func(args []string, msg string) {
			_, err := runCommand(append([]string{"send", "--target", "127.0.0.1:1062"}, args...)...)
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("snmpv3", []string{"--version", "3"}, "unsupported SNMP version"),
		Entry("bad trap oid", []string{"--oid", "linkDown"}, "invalid trap OID"),
		Entry("bad generic", []string{"--version", "1", "--generic", "7"}, "invalid generic trap"),
		Entry("ipv6 agent", []string{"--version", "1", "--agent-address", "::1"}, "must be IPv4"),
		Entry("bad varbind", []string{"--var", "1.3.6.1.2.1.1.5.0"}, "want OID=TYPE:VALUE"),
		Entry("bad schedule", []string{"--schedule", "every minute"}, "invalid schedule"),
	)

	It("rejects a malformed target", func() {
		_, err := runCommand("send", "--target", "localhost")
		Expect(err).To(MatchError(ContainSubstring("invalid trap target")))

		_, err = runCommand("send", "--target", "localhost:0")
		Expect(err).To(MatchError(ContainSubstring("invalid trap target port")))
	})
})

var _ = Describe("parseVarBinds", func() {
	It("converts every supported type", func() {
		pdus, err := parseVarBinds([]string{
			"1.3.6.1.2.1.1.5.0=s:arduino",
			".1.3.6.1.2.1.2.2.1.1.1=i:-1",
			"1.3.6.1.2.1.2.2.1.5.1=u:100000000",
			"1.3.6.1.2.1.1.3.0=t:4200",
			"1.3.6.1.2.1.1.2.0=o:1.3.6.1.4.1.36582",
			"1.3.6.1.2.1.4.20.1.1.1=a:192.0.2.1",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pdus).To(Equal([]gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: "arduino"},
			{Name: ".1.3.6.1.2.1.2.2.1.1.1", Type: gosnmp.Integer, Value: -1},
			{Name: ".1.3.6.1.2.1.2.2.1.5.1", Type: gosnmp.Gauge32, Value: uint32(100000000)},
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(4200)},
			{Name: ".1.3.6.1.2.1.1.2.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.36582"},
			{Name: ".1.3.6.1.2.1.4.20.1.1.1", Type: gosnmp.IPAddress, Value: "192.0.2.1"},
		}))
	})

	DescribeTable("errors",
		func(arg, msg string) {
			_, err := parseVarBinds([]string{arg})
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("no type", "1.3.6.1=value", "want OID=TYPE:VALUE"),
		Entry("bad oid", "x.y=s:v", "invalid varbind"),
		Entry("unknown type", "1.3.6.1=z:v", "unknown varbind type"),
		Entry("integer overflow", "1.3.6.1=i:99999999999", "invalid integer"),
		Entry("negative unsigned", "1.3.6.1=u:-1", "invalid unsigned"),
		Entry("ipv6", "1.3.6.1=a:::1", "invalid IPv4"),
	)
})

var _ = Describe("trapSpec", func() {
	It("prepends sysUpTime.0 and snmpTrapOID.0 to v2c traps", func() {
		trap, err := trapSpec{version: "2c", trapOID: oidLinkDown, vars: []string{"1.3.6.1.2.1.1.5.0=s:x"}}.build(42)
		Expect(err).NotTo(HaveOccurred())
		Expect(trap.Variables).To(HaveLen(3))
		Expect(trap.Variables[0]).To(Equal(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(42)}))
		Expect(trap.Variables[1].Value).To(Equal("." + oidLinkDown))
	})

	It("fills the v1 header", func() {
		trap, err := trapSpec{version: "1", enterprise: defaultEnterprise, agentAddress: "192.0.2.7", generic: 6, specific: 9}.build(42)
		Expect(err).NotTo(HaveOccurred())
		Expect(trap.Enterprise).To(Equal("." + defaultEnterprise))
		Expect(trap.AgentAddress).To(Equal("192.0.2.7"))
		Expect(trap.GenericTrap).To(Equal(6))
		Expect(trap.SpecificTrap).To(Equal(9))
		Expect(trap.Timestamp).To(Equal(uint(42)))
		Expect(trap.Variables).To(BeEmpty())
	})
})

var _ = Describe("runSchedule", func() {
	It("runs the job until the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- runSchedule(ctx, "@every 1s", func() { calls.Add(1) })
		}()

		Eventually(calls.Load, 5*time.Second).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("rejects an invalid expression", func() {
		err := runSchedule(context.Background(), "61 * * * *", func() {})
		Expect(err).To(MatchError(ContainSubstring("invalid schedule")))
	})
})
