package snmppdu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxOIDLength bounds the number of sub-identifiers accepted in one OID.
const MaxOIDLength = 128

// OID is an object identifier as a sequence of sub-identifiers.
type OID []uint32

// Well-known OIDs used when interpreting trap notifications.
var (
	OIDSysUpTime          = OID{1, 3, 6, 1, 2, 1, 1, 3, 0}
	OIDSnmpTrapOID        = OID{1, 3, 6, 1, 6, 3, 1, 1, 4, 1, 0}
	OIDSnmpTrapEnterprise = OID{1, 3, 6, 1, 6, 3, 1, 1, 4, 3, 0}
	OIDSnmpTraps          = OID{1, 3, 6, 1, 6, 3, 1, 1, 5}
)

// ParseOID parses dotted notation, with or without a leading dot.
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, errors.New("empty OID")
	}
	parts := strings.Split(s, ".")
	if len(parts) > MaxOIDLength {
		return nil, fmt.Errorf("OID has %d sub-identifiers, limit is %d", len(parts), MaxOIDLength)
	}
	oid := make(OID, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid sub-identifier %q in OID %q: %w", p, s, err)
		}
		oid[i] = uint32(n)
	}
	return oid, nil
}

// MustParseOID is ParseOID for constants; it panics on error.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String returns dotted notation without a leading dot.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(o) * 3)
	for i, n := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}
	return b.String()
}

// Equal reports whether o and other name the same object.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of, or equal to, o.
func (o OID) HasPrefix(prefix OID) bool {
	return len(o) >= len(prefix) && o[:len(prefix)].Equal(prefix)
}

// Append returns a new OID with subs appended. o is not modified.
func (o OID) Append(subs ...uint32) OID {
	out := make(OID, 0, len(o)+len(subs))
	out = append(out, o...)
	return append(out, subs...)
}
