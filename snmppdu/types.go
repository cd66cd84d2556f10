// Package snmppdu decodes SNMPv1 and SNMPv2c trap messages from their BER
// wire encoding.
//
// Decoding is pure: Decode takes the bytes of one UDP datagram and returns a
// TrapMessage that shares no memory with the input, so callers may reuse
// their receive buffers immediately.
//
//	msg, err := snmppdu.Decode(datagram)
//	if errors.Is(err, snmppdu.ErrUnsupportedType) {
//		// a varbind carried a value tag this package does not know
//	}
//	fmt.Println(msg.Version, msg.Community, msg.Kind())
package snmppdu

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"time"
)

// Version is the SNMP message version field.
type Version int

// Supported message versions. SNMPv3 is not decoded.
const (
	V1  Version = 0
	V2c Version = 1
)

// String returns the conventional name used in configuration ("1", "2c").
func (v Version) String() string {
	switch v {
	case V1:
		return "1"
	case V2c:
		return "2c"
	default:
		return "unknown(" + strconv.Itoa(int(v)) + ")"
	}
}

// ParseVersion maps a configuration string to a Version.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "1", "v1":
		return V1, nil
	case "2c", "v2c":
		return V2c, nil
	default:
		return 0, fmt.Errorf("unsupported SNMP version %q", s)
	}
}

// PDUType is the context-specific tag of the PDU carried in a message.
type PDUType byte

// Trap PDU tags.
const (
	PDUTrapV1 PDUType = 0xa4
	PDUTrapV2 PDUType = 0xa7
)

func (p PDUType) String() string {
	switch p {
	case PDUTrapV1:
		return "Trap-PDU"
	case PDUTrapV2:
		return "SNMPv2-Trap-PDU"
	default:
		return fmt.Sprintf("PDU(0x%02x)", byte(p))
	}
}

// ValueType is the BER tag of a variable binding value.
type ValueType byte

// Value tags accepted in variable bindings.
const (
	TypeInteger          ValueType = 0x02
	TypeOctetString      ValueType = 0x04
	TypeNull             ValueType = 0x05
	TypeObjectIdentifier ValueType = 0x06
	TypeIPAddress        ValueType = 0x40
	TypeCounter32        ValueType = 0x41
	TypeGauge32          ValueType = 0x42
	TypeTimeTicks        ValueType = 0x43
	TypeOpaque           ValueType = 0x44
	TypeCounter64        ValueType = 0x46
	TypeUinteger32       ValueType = 0x47

	// v2c exception values, carried with an empty body.
	TypeNoSuchObject   ValueType = 0x80
	TypeNoSuchInstance ValueType = 0x81
	TypeEndOfMibView   ValueType = 0x82
)

var valueTypeNames = map[ValueType]string{
	TypeInteger:          "Integer",
	TypeOctetString:      "OctetString",
	TypeNull:             "Null",
	TypeObjectIdentifier: "ObjectIdentifier",
	TypeIPAddress:        "IpAddress",
	TypeCounter32:        "Counter32",
	TypeGauge32:          "Gauge32",
	TypeTimeTicks:        "TimeTicks",
	TypeOpaque:           "Opaque",
	TypeCounter64:        "Counter64",
	TypeUinteger32:       "Uinteger32",
	TypeNoSuchObject:     "noSuchObject",
	TypeNoSuchInstance:   "noSuchInstance",
	TypeEndOfMibView:     "endOfMibView",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(0x%02x)", byte(t))
}

// Value is a tagged variable binding value. Only the field matching Type is
// meaningful: Int for Integer, Uint for the unsigned application types,
// Bytes for OctetString, Opaque and IpAddress, OID for ObjectIdentifier.
type Value struct {
	Type  ValueType
	Int   int64
	Uint  uint64
	Bytes []byte
	OID   OID
}

// IP returns the address held by an IpAddress value.
func (v Value) IP() (netip.Addr, bool) {
	if v.Type != TypeIPAddress || len(v.Bytes) != 4 {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(v.Bytes)), true
}

// String renders the value for logs.
func (v Value) String() string {
	switch v.Type {
	case TypeInteger:
		return strconv.FormatInt(v.Int, 10)
	case TypeCounter32, TypeGauge32, TypeUinteger32, TypeCounter64:
		return strconv.FormatUint(v.Uint, 10)
	case TypeTimeTicks:
		return (time.Duration(v.Uint) * 10 * time.Millisecond).String()
	case TypeOctetString:
		if isPrintable(v.Bytes) {
			return string(v.Bytes)
		}
		return hex.EncodeToString(v.Bytes)
	case TypeOpaque:
		return hex.EncodeToString(v.Bytes)
	case TypeIPAddress:
		if ip, ok := v.IP(); ok {
			return ip.String()
		}
		return hex.EncodeToString(v.Bytes)
	case TypeObjectIdentifier:
		return v.OID.String()
	default:
		return v.Type.String()
	}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// VarBind is one (OID, value) pair of a variable-bindings list.
type VarBind struct {
	OID   OID
	Value Value
}

// GenericTrap is the generic-trap field of an SNMPv1 Trap-PDU.
type GenericTrap int

// Generic trap numbers from RFC 1157.
const (
	ColdStart GenericTrap = iota
	WarmStart
	LinkDown
	LinkUp
	AuthenticationFailure
	EGPNeighborLoss
	EnterpriseSpecific
)

var genericTrapNames = [...]string{
	"coldStart",
	"warmStart",
	"linkDown",
	"linkUp",
	"authenticationFailure",
	"egpNeighborLoss",
	"enterpriseSpecific",
}

func (g GenericTrap) String() string {
	if g >= 0 && int(g) < len(genericTrapNames) {
		return genericTrapNames[g]
	}
	return "generic(" + strconv.Itoa(int(g)) + ")"
}

// TrapMessage is one decoded trap notification.
//
// Enterprise, AgentAddress, GenericTrap, SpecificTrap and Timestamp are set
// from the v1 Trap-PDU header. For v2c, RequestID is set and Enterprise is
// taken from snmpTrapEnterprise.0 when the agent includes it.
//
// Source and ReceivedAt are filled in by the receiver, not the decoder.
type TrapMessage struct {
	Version   Version
	Community string
	PDUType   PDUType

	Enterprise   OID
	AgentAddress netip.Addr
	GenericTrap  GenericTrap
	SpecificTrap int // 0..MaxInt32
	Timestamp    uint32

	RequestID int32

	VarBinds []VarBind

	Source     netip.AddrPort
	ReceivedAt time.Time
}

// Lookup returns the value bound to oid, if present.
func (m *TrapMessage) Lookup(oid OID) (Value, bool) {
	for _, vb := range m.VarBinds {
		if vb.OID.Equal(oid) {
			return vb.Value, true
		}
	}
	return Value{}, false
}

// Uptime returns the agent uptime in hundredths of a second: the time-stamp
// field for v1, sysUpTime.0 for v2c.
func (m *TrapMessage) Uptime() uint32 {
	if m.Version == V1 {
		return m.Timestamp
	}
	if v, ok := m.Lookup(OIDSysUpTime); ok && v.Type == TypeTimeTicks {
		return uint32(v.Uint)
	}
	return 0
}

// LogValue implements slog.LogValuer.
func (m *TrapMessage) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("version", m.Version.String()),
		slog.String("kind", m.Kind()),
		slog.Int("varbinds", len(m.VarBinds)),
	}
	if m.Source.IsValid() {
		attrs = append(attrs, slog.String("source", m.Source.String()))
	}
	if m.Version == V1 {
		attrs = append(attrs,
			slog.String("generic", m.GenericTrap.String()),
			slog.Int("specific", m.SpecificTrap),
		)
	}
	return slog.GroupValue(attrs...)
}
