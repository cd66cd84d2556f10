package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rexpark/Arduino-SNMP/snmppdu"
	"github.com/rexpark/Arduino-SNMP/snmptranslate"
)

func translateCmd() *cobra.Command {
	var mibDirs []string

	cmd := &cobra.Command{
		Use:   "translate OID...",
		Short: "Print the MIB name of each OID",
		Long: "translate names OIDs the same way the trap log does, from the built-in " +
			"names plus any MIB directories given with --mib-dir.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr := snmptranslate.New()
			for _, dir := range mibDirs {
				if _, err := tr.LoadDir(dir); err != nil {
					return err
				}
			}

			for _, arg := range args {
				oid, err := snmppdu.ParseOID(arg)
				if err != nil {
					return err
				}
				entry, _, ok := tr.Lookup(oid)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", oid, oid)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s::%s\n", oid, entry.Module, tr.Translate(oid))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&mibDirs, "mib-dir", nil, "directory of MIB files, repeatable")
	return cmd
}
