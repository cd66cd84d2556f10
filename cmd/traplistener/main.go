// Command traplistener receives SNMP traps and writes them to a trap log.
//
// Usage:
//
//	traplistener listen --config traplistener.yaml
//	traplistener send --target 127.0.0.1:1062 --version 2c --oid 1.3.6.1.6.3.1.1.5.3
//	traplistener config --config traplistener.yaml
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}
