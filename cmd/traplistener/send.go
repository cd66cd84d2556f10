package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/rexpark/Arduino-SNMP/logging"
	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// Arduino enterprise number, used when a v1 trap names no enterprise.
const defaultEnterprise = "1.3.6.1.4.1.36582"

// trapSpec describes the notification to send.
type trapSpec struct {
	version      string
	trapOID      string
	enterprise   string
	agentAddress string
	generic      int
	specific     int
	vars         []string
}

// build assembles the gosnmp trap. uptime is in hundredths of a second.
func (t trapSpec) build(uptime uint32) (gosnmp.SnmpTrap, error) {
	vars, err := parseVarBinds(t.vars)
	if err != nil {
		return gosnmp.SnmpTrap{}, err
	}

	switch t.version {
	case "1", "v1":
		enterprise, err := snmppdu.ParseOID(t.enterprise)
		if err != nil {
			return gosnmp.SnmpTrap{}, fmt.Errorf("invalid enterprise: %w", err)
		}
		agent, err := netip.ParseAddr(t.agentAddress)
		if err != nil || !agent.Is4() {
			return gosnmp.SnmpTrap{}, fmt.Errorf("invalid agent address %q: must be IPv4", t.agentAddress)
		}
		if t.generic < int(snmppdu.ColdStart) || t.generic > int(snmppdu.EnterpriseSpecific) {
			return gosnmp.SnmpTrap{}, fmt.Errorf("invalid generic trap %d: must be 0..6", t.generic)
		}
		return gosnmp.SnmpTrap{
			Variables:    vars,
			Enterprise:   "." + enterprise.String(),
			AgentAddress: agent.String(),
			GenericTrap:  t.generic,
			SpecificTrap: t.specific,
			Timestamp:    uint(uptime),
		}, nil

	case "2c", "v2c":
		trapOID, err := snmppdu.ParseOID(t.trapOID)
		if err != nil {
			return gosnmp.SnmpTrap{}, fmt.Errorf("invalid trap OID: %w", err)
		}
		return gosnmp.SnmpTrap{
			Variables: append([]gosnmp.SnmpPDU{
				{Name: "." + snmppdu.OIDSysUpTime.String(), Type: gosnmp.TimeTicks, Value: uptime},
				{Name: "." + snmppdu.OIDSnmpTrapOID.String(), Type: gosnmp.ObjectIdentifier, Value: "." + trapOID.String()},
			}, vars...),
		}, nil

	default:
		return gosnmp.SnmpTrap{}, fmt.Errorf("unsupported SNMP version %q (must be 1 or 2c)", t.version)
	}
}

// parseVarBinds reads OID=TYPE:VALUE arguments. TYPE is one of s (string),
// i (integer), u (gauge32), t (timeticks), o (object identifier) or
// a (IPv4 address).
func parseVarBinds(args []string) ([]gosnmp.SnmpPDU, error) {
	pdus := make([]gosnmp.SnmpPDU, 0, len(args))
	for _, arg := range args {
		name, typed, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid varbind %q: want OID=TYPE:VALUE", arg)
		}
		oid, err := snmppdu.ParseOID(name)
		if err != nil {
			return nil, fmt.Errorf("invalid varbind %q: %w", arg, err)
		}
		kind, raw, ok := strings.Cut(typed, ":")
		if !ok {
			return nil, fmt.Errorf("invalid varbind %q: want OID=TYPE:VALUE", arg)
		}

		pdu := gosnmp.SnmpPDU{Name: "." + oid.String()}
		switch kind {
		case "s":
			pdu.Type, pdu.Value = gosnmp.OctetString, raw
		case "i":
			n, err := strconv.ParseInt(raw, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid integer in varbind %q: %w", arg, err)
			}
			pdu.Type, pdu.Value = gosnmp.Integer, int(n)
		case "u", "t":
			n, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid unsigned in varbind %q: %w", arg, err)
			}
			pdu.Type, pdu.Value = gosnmp.Gauge32, uint32(n)
			if kind == "t" {
				pdu.Type = gosnmp.TimeTicks
			}
		case "o":
			value, err := snmppdu.ParseOID(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid OID value in varbind %q: %w", arg, err)
			}
			pdu.Type, pdu.Value = gosnmp.ObjectIdentifier, "."+value.String()
		case "a":
			addr, err := netip.ParseAddr(raw)
			if err != nil || !addr.Is4() {
				return nil, fmt.Errorf("invalid IPv4 address in varbind %q", arg)
			}
			pdu.Type, pdu.Value = gosnmp.IPAddress, addr.String()
		default:
			return nil, fmt.Errorf("unknown varbind type %q in %q", kind, arg)
		}
		pdus = append(pdus, pdu)
	}
	return pdus, nil
}

// trapSender delivers one trap to every target.
type trapSender struct {
	version   gosnmp.SnmpVersion
	community string
	timeout   time.Duration
	retries   int
	targets   []string
}

func newTrapSender(version, community string, timeout time.Duration, retries int, targets []string) (*trapSender, error) {
	if len(targets) == 0 {
		return nil, errors.New("at least one --target is required")
	}
	for _, target := range targets {
		if _, _, err := parseTarget(target); err != nil {
			return nil, err
		}
	}

	s := &trapSender{
		community: community,
		timeout:   timeout,
		retries:   retries,
		targets:   append([]string(nil), targets...),
	}
	switch version {
	case "1", "v1":
		s.version = gosnmp.Version1
	case "2c", "v2c":
		s.version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("unsupported SNMP version %q (must be 1 or 2c)", version)
	}
	return s, nil
}

func (s *trapSender) client(target string) (*gosnmp.GoSNMP, error) {
	host, port, err := parseTarget(target)
	if err != nil {
		return nil, err
	}
	return &gosnmp.GoSNMP{
		Target:    host,
		Port:      port,
		Version:   s.version,
		Community: s.community,
		Timeout:   s.timeout,
		Retries:   s.retries,
	}, nil
}

// Send delivers trap to each target in order and stops at the first error.
func (s *trapSender) Send(trap gosnmp.SnmpTrap) error {
	for _, target := range s.targets {
		client, err := s.client(target)
		if err != nil {
			return err
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connect trap target %s: %w", target, err)
		}
		_, err = client.SendTrap(trap)
		_ = client.Conn.Close()
		if err != nil {
			return fmt.Errorf("send trap to %s: %w", target, err)
		}
	}
	return nil
}

func parseTarget(target string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(target))
	if err != nil {
		return "", 0, fmt.Errorf("invalid trap target %q", target)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", 0, fmt.Errorf("invalid trap target port %q", target)
	}
	return host, uint16(n), nil
}

// runSchedule calls fn on every tick of spec until ctx is done. spec is a
// five-field cron expression or a descriptor such as "@every 10s".
func runSchedule(ctx context.Context, spec string, fn func()) error {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func sendCmd() *cobra.Command {
	var (
		spec      trapSpec
		community string
		targets   []string
		timeout   time.Duration
		retries   int
		schedule  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an SNMP v1 or v2c trap",
		Long: "send emits a trap to one or more receivers, once or on a cron " +
			"schedule. Varbinds are given as OID=TYPE:VALUE with TYPE one of " +
			"s, i, u, t, o, a.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, err := newTrapSender(spec.version, community, timeout, retries, targets)
			if err != nil {
				return err
			}

			started := time.Now()
			uptime := func() uint32 {
				return uint32(time.Since(started) / (10 * time.Millisecond))
			}

			// Validate once up front so a bad flag fails before scheduling.
			trap, err := spec.build(uptime())
			if err != nil {
				return err
			}

			logger := logging.NewComponentLogger(logging.GetLogger(), "trap_sender", "gosnmp")
			if schedule == "" {
				if err := sender.Send(trap); err != nil {
					return err
				}
				logger.Info("trap sent", "targets", targets, "version", spec.version)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("sending traps on schedule", "schedule", schedule, "targets", targets)
			return runSchedule(ctx, schedule, func() {
				trap, err := spec.build(uptime())
				if err == nil {
					err = sender.Send(trap)
				}
				if err != nil {
					logger.Error("scheduled trap failed", "error", err)
					return
				}
				logger.Debug("scheduled trap sent", "targets", targets)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&targets, "target", "t", nil, "receiver host:port, repeatable")
	flags.StringVarP(&spec.version, "version", "v", "2c", "SNMP version: 1 or 2c")
	flags.StringVarP(&community, "community", "c", "public", "community string")
	flags.StringVar(&spec.trapOID, "oid", "1.3.6.1.6.3.1.1.5.1", "snmpTrapOID.0 value for v2c traps")
	flags.StringVar(&spec.enterprise, "enterprise", defaultEnterprise, "enterprise OID for v1 traps")
	flags.StringVar(&spec.agentAddress, "agent-address", "127.0.0.1", "agent address for v1 traps")
	flags.IntVar(&spec.generic, "generic", int(snmppdu.ColdStart), "generic trap number for v1 traps (0..6)")
	flags.IntVar(&spec.specific, "specific", 0, "specific trap number for v1 traps")
	flags.StringArrayVar(&spec.vars, "var", nil, "extra varbind OID=TYPE:VALUE, repeatable")
	flags.DurationVar(&timeout, "timeout", 2*time.Second, "per-target send timeout")
	flags.IntVar(&retries, "retries", 0, "retries per target")
	flags.StringVar(&schedule, "schedule", "", "cron expression (or @every <duration>) to repeat sending until interrupted")

	return cmd
}
