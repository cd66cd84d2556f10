package snmppdu

// TrapOID returns the notification OID that identifies the trap, following
// the RFC 3584 mapping so v1 and v2c traps share one key space:
//
//   - v1 generic traps 0..5 map to snmpTraps.(generic+1)
//   - v1 enterpriseSpecific maps to enterprise.0.specific
//   - v2c uses the value of snmpTrapOID.0
//
// It returns nil for a v2c trap without snmpTrapOID.0.
func (m *TrapMessage) TrapOID() OID {
	switch m.Version {
	case V1:
		if m.GenericTrap == EnterpriseSpecific {
			return m.Enterprise.Append(0, uint32(m.SpecificTrap))
		}
		return OIDSnmpTraps.Append(uint32(m.GenericTrap) + 1)
	default:
		if v, ok := m.Lookup(OIDSnmpTrapOID); ok && v.Type == TypeObjectIdentifier {
			return v.OID
		}
		return nil
	}
}

// Kind is the dispatch key for the message: TrapOID in dotted form, or ""
// when the trap carries no notification OID.
func (m *TrapMessage) Kind() string {
	return m.TrapOID().String()
}
