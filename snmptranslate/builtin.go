package snmptranslate

var builtin = []struct {
	oid, name, module string
}{
	{"1", "iso", "SNMPv2-SMI"},
	{"1.3", "org", "SNMPv2-SMI"},
	{"1.3.6", "dod", "SNMPv2-SMI"},
	{"1.3.6.1", "internet", "SNMPv2-SMI"},
	{"1.3.6.1.2", "mgmt", "SNMPv2-SMI"},
	{"1.3.6.1.2.1", "mib-2", "SNMPv2-SMI"},
	{"1.3.6.1.4", "private", "SNMPv2-SMI"},
	{"1.3.6.1.4.1", "enterprises", "SNMPv2-SMI"},
	{"1.3.6.1.6", "snmpV2", "SNMPv2-SMI"},
	{"1.3.6.1.6.3", "snmpModules", "SNMPv2-SMI"},

	{"1.3.6.1.2.1.1", "system", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.1", "sysDescr", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.2", "sysObjectID", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.3", "sysUpTime", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.4", "sysContact", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.5", "sysName", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.6", "sysLocation", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.1.7", "sysServices", "SNMPv2-MIB"},
	{"1.3.6.1.2.1.11", "snmp", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1", "snmpMIB", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1", "snmpMIBObjects", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.4", "snmpTrap", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.4.1", "snmpTrapOID", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.4.3", "snmpTrapEnterprise", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.5", "snmpTraps", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.5.1", "coldStart", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.5.2", "warmStart", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.5.3", "linkDown", "IF-MIB"},
	{"1.3.6.1.6.3.1.1.5.4", "linkUp", "IF-MIB"},
	{"1.3.6.1.6.3.1.1.5.5", "authenticationFailure", "SNMPv2-MIB"},
	{"1.3.6.1.6.3.1.1.5.6", "egpNeighborLoss", "RFC1213-MIB"},

	{"1.3.6.1.2.1.2", "interfaces", "IF-MIB"},
	{"1.3.6.1.2.1.2.1", "ifNumber", "IF-MIB"},
	{"1.3.6.1.2.1.2.2", "ifTable", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1", "ifEntry", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1.1", "ifIndex", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1.2", "ifDescr", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1.3", "ifType", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1.5", "ifSpeed", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1.7", "ifAdminStatus", "IF-MIB"},
	{"1.3.6.1.2.1.2.2.1.8", "ifOperStatus", "IF-MIB"},

	{"1.3.6.1.4.1.36582", "arduino", "ARDUINO-SMI"},
}
