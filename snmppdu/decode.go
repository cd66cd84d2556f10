package snmppdu

import (
	"bytes"
	"math"
	"net/netip"
)

const (
	tagInteger     = 0x02
	tagOctetString = 0x04
	tagOID         = 0x06
	tagSequence    = 0x30

	// Long-form lengths wider than this are rejected; no UDP datagram needs them.
	maxLengthOctets = 4
)

// reader walks BER TLVs in buf. base is the offset of buf[0] within the
// datagram so errors point at absolute positions.
type reader struct {
	buf  []byte
	off  int
	base int
}

func (r *reader) pos() int    { return r.base + r.off }
func (r *reader) empty() bool { return r.off >= len(r.buf) }

// next consumes one TLV and returns its tag and a reader over its contents.
func (r *reader) next() (byte, *reader, error) {
	start := r.pos()
	if r.off >= len(r.buf) {
		return 0, nil, malformed(start, "unexpected end of data")
	}
	tag := r.buf[r.off]
	r.off++

	if r.off >= len(r.buf) {
		return 0, nil, malformed(start, "truncated length for tag 0x%02x", tag)
	}
	first := r.buf[r.off]
	r.off++

	var length uint64
	switch {
	case first < 0x80:
		length = uint64(first)
	case first == 0x80:
		return 0, nil, malformed(start, "indefinite length for tag 0x%02x", tag)
	default:
		n := int(first & 0x7f)
		if n > maxLengthOctets {
			return 0, nil, malformed(start, "length field of %d octets", n)
		}
		if n > len(r.buf)-r.off {
			return 0, nil, malformed(start, "truncated length for tag 0x%02x", tag)
		}
		for _, b := range r.buf[r.off : r.off+n] {
			length = length<<8 | uint64(b)
		}
		r.off += n
	}

	remaining := len(r.buf) - r.off
	if length > uint64(remaining) {
		return 0, nil, malformed(start, "length %d for tag 0x%02x exceeds remaining %d bytes", length, tag, remaining)
	}

	end := r.off + int(length)
	content := &reader{buf: r.buf[r.off:end], base: r.pos()}
	r.off = end
	return tag, content, nil
}

// expect consumes one TLV that must carry tag want.
func (r *reader) expect(want byte, field string) (*reader, error) {
	start := r.pos()
	tag, content, err := r.next()
	if err != nil {
		return nil, err
	}
	if tag != want {
		return nil, malformed(start, "%s: expected tag 0x%02x, got 0x%02x", field, want, tag)
	}
	return content, nil
}

func (r *reader) readInt(field string) (int64, error) {
	content, err := r.expect(tagInteger, field)
	if err != nil {
		return 0, err
	}
	return parseInt(content)
}

func parseInt(c *reader) (int64, error) {
	b := c.buf
	if len(b) == 0 {
		return 0, malformed(c.base, "empty integer")
	}
	if len(b) > 8 {
		return 0, malformed(c.base, "integer of %d octets overflows 64 bits", len(b))
	}
	v := int64(int8(b[0]))
	for _, x := range b[1:] {
		v = v<<8 | int64(x)
	}
	return v, nil
}

// parseUint decodes the unsigned application types. Leading zero octets
// are allowed; the remaining magnitude must fit in bits.
func parseUint(c *reader, bits int) (uint64, error) {
	b := c.buf
	if len(b) == 0 {
		return 0, malformed(c.base, "empty unsigned integer")
	}
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > bits/8 {
		return 0, malformed(c.base, "unsigned integer overflows %d bits", bits)
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func parseOID(c *reader) (OID, error) {
	b := c.buf
	if len(b) == 0 {
		return nil, malformed(c.base, "empty object identifier")
	}
	if b[len(b)-1]&0x80 != 0 {
		return nil, malformed(c.base+len(b)-1, "truncated sub-identifier")
	}

	oid := make(OID, 0, len(b)+1)
	var v uint64
	first := true
	for i, x := range b {
		v = v<<7 | uint64(x&0x7f)
		if v > math.MaxUint32 {
			return nil, malformed(c.base+i, "sub-identifier overflows 32 bits")
		}
		if x&0x80 != 0 {
			continue
		}
		if first {
			switch {
			case v < 40:
				oid = append(oid, 0, uint32(v))
			case v < 80:
				oid = append(oid, 1, uint32(v-40))
			default:
				oid = append(oid, 2, uint32(v-80))
			}
			first = false
		} else {
			oid = append(oid, uint32(v))
		}
		if len(oid) > MaxOIDLength {
			return nil, malformed(c.base+i, "object identifier longer than %d sub-identifiers", MaxOIDLength)
		}
		v = 0
	}
	return oid, nil
}

func parseValue(tag byte, start int, c *reader) (Value, error) {
	t := ValueType(tag)
	switch t {
	case TypeInteger:
		n, err := parseInt(c)
		return Value{Type: t, Int: n}, err
	case TypeOctetString, TypeOpaque:
		return Value{Type: t, Bytes: bytes.Clone(c.buf)}, nil
	case TypeNull, TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView:
		if len(c.buf) != 0 {
			return Value{}, malformed(start, "%s with %d content octets", t, len(c.buf))
		}
		return Value{Type: t}, nil
	case TypeObjectIdentifier:
		oid, err := parseOID(c)
		return Value{Type: t, OID: oid}, err
	case TypeIPAddress:
		if len(c.buf) != 4 {
			return Value{}, malformed(start, "IpAddress of %d octets", len(c.buf))
		}
		return Value{Type: t, Bytes: bytes.Clone(c.buf)}, nil
	case TypeCounter32, TypeGauge32, TypeTimeTicks, TypeUinteger32:
		n, err := parseUint(c, 32)
		return Value{Type: t, Uint: n}, err
	case TypeCounter64:
		n, err := parseUint(c, 64)
		return Value{Type: t, Uint: n}, err
	default:
		return Value{}, &DecodeError{Err: ErrUnsupportedType, Offset: start, Msg: "tag " + t.String()}
	}
}

// Decode parses one datagram as an SNMPv1 or SNMPv2c trap message.
//
// Errors are *DecodeError values wrapping ErrMalformed or
// ErrUnsupportedType. The returned message does not reference b.
func Decode(b []byte) (*TrapMessage, error) {
	if len(b) == 0 {
		return nil, malformed(0, "empty datagram")
	}
	if b[0] != tagSequence {
		return nil, malformed(0, "unsupported top-level tag 0x%02x", b[0])
	}

	top := &reader{buf: b}
	_, msg, err := top.next()
	if err != nil {
		return nil, err
	}
	if !top.empty() {
		return nil, malformed(top.pos(), "%d trailing bytes after message", len(b)-top.off)
	}

	verStart := msg.pos()
	ver, err := msg.readInt("version")
	if err != nil {
		return nil, err
	}
	if ver != int64(V1) && ver != int64(V2c) {
		return nil, malformed(verStart, "unsupported version %d", ver)
	}

	community, err := msg.expect(tagOctetString, "community")
	if err != nil {
		return nil, err
	}

	out := &TrapMessage{
		Version:   Version(ver),
		Community: string(community.buf),
	}

	pduStart := msg.pos()
	tag, pdu, err := msg.next()
	if err != nil {
		return nil, err
	}
	out.PDUType = PDUType(tag)

	switch out.PDUType {
	case PDUTrapV1:
		if out.Version != V1 {
			return nil, malformed(pduStart, "Trap-PDU in a version %s message", out.Version)
		}
		err = decodeV1(pdu, out)
	case PDUTrapV2:
		if out.Version != V2c {
			return nil, malformed(pduStart, "SNMPv2-Trap-PDU in a version %s message", out.Version)
		}
		err = decodeV2(pdu, out)
	default:
		return nil, malformed(pduStart, "unsupported PDU type 0x%02x", tag)
	}
	if err != nil {
		return nil, err
	}

	if !msg.empty() {
		return nil, malformed(msg.pos(), "trailing data after PDU")
	}
	return out, nil
}

func decodeV1(pdu *reader, out *TrapMessage) error {
	ent, err := pdu.expect(tagOID, "enterprise")
	if err != nil {
		return err
	}
	if out.Enterprise, err = parseOID(ent); err != nil {
		return err
	}

	addr, err := pdu.expect(byte(TypeIPAddress), "agent-addr")
	if err != nil {
		return err
	}
	if len(addr.buf) != 4 {
		return malformed(addr.base, "agent-addr of %d octets", len(addr.buf))
	}
	out.AgentAddress = netip.AddrFrom4([4]byte(addr.buf))

	genStart := pdu.pos()
	generic, err := pdu.readInt("generic-trap")
	if err != nil {
		return err
	}
	if generic < int64(ColdStart) || generic > int64(EnterpriseSpecific) {
		return malformed(genStart, "generic-trap %d out of range", generic)
	}
	out.GenericTrap = GenericTrap(generic)

	specStart := pdu.pos()
	specific, err := pdu.readInt("specific-trap")
	if err != nil {
		return err
	}
	// specific-trap becomes an OID sub-identifier in TrapOID.
	if specific < 0 || specific > math.MaxInt32 {
		return malformed(specStart, "specific-trap %d out of range", specific)
	}
	out.SpecificTrap = int(specific)

	ts, err := pdu.expect(byte(TypeTimeTicks), "time-stamp")
	if err != nil {
		return err
	}
	ticks, err := parseUint(ts, 32)
	if err != nil {
		return err
	}
	out.Timestamp = uint32(ticks)

	if out.VarBinds, err = decodeVarBinds(pdu); err != nil {
		return err
	}
	if !pdu.empty() {
		return malformed(pdu.pos(), "trailing data in Trap-PDU")
	}
	return nil
}

func decodeV2(pdu *reader, out *TrapMessage) error {
	reqStart := pdu.pos()
	reqID, err := pdu.readInt("request-id")
	if err != nil {
		return err
	}
	if reqID < math.MinInt32 || reqID > math.MaxInt32 {
		return malformed(reqStart, "request-id %d out of range", reqID)
	}
	out.RequestID = int32(reqID)

	if _, err := pdu.readInt("error-status"); err != nil {
		return err
	}
	if _, err := pdu.readInt("error-index"); err != nil {
		return err
	}

	if out.VarBinds, err = decodeVarBinds(pdu); err != nil {
		return err
	}
	if !pdu.empty() {
		return malformed(pdu.pos(), "trailing data in SNMPv2-Trap-PDU")
	}

	if v, ok := out.Lookup(OIDSnmpTrapEnterprise); ok && v.Type == TypeObjectIdentifier {
		out.Enterprise = v.OID
	}
	return nil
}

func decodeVarBinds(pdu *reader) ([]VarBind, error) {
	list, err := pdu.expect(tagSequence, "variable-bindings")
	if err != nil {
		return nil, err
	}

	var binds []VarBind
	for !list.empty() {
		vb, err := list.expect(tagSequence, "varbind")
		if err != nil {
			return nil, err
		}

		name, err := vb.expect(tagOID, "varbind name")
		if err != nil {
			return nil, err
		}
		oid, err := parseOID(name)
		if err != nil {
			return nil, err
		}

		valStart := vb.pos()
		tag, content, err := vb.next()
		if err != nil {
			return nil, err
		}
		val, err := parseValue(tag, valStart, content)
		if err != nil {
			return nil, err
		}

		if !vb.empty() {
			return nil, malformed(vb.pos(), "trailing data in varbind %s", oid)
		}
		binds = append(binds, VarBind{OID: oid, Value: val})
	}
	return binds, nil
}
