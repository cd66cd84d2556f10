package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rexpark/Arduino-SNMP/logging"
)

// newRootCmd builds the traplistener command tree.
func newRootCmd() *cobra.Command {
	o := &overrides{}

	root := &cobra.Command{
		Use:   "traplistener",
		Short: "SNMP v1/v2c trap receiver",
		Long: "traplistener receives SNMP v1 and v2c traps on a UDP port, checks the " +
			"community string and records every accepted trap to a log file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.logLevel, "log-level", logging.LevelInfo,
		"log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", logging.FormatLogfmt,
		"log format: logfmt, json")

	root.AddCommand(listenCmd(o))
	root.AddCommand(sendCmd())
	root.AddCommand(configCmd(o))
	root.AddCommand(translateCmd())
	root.AddCommand(versionCmd())

	return root
}

// execute runs the command tree with args and returns the process exit code.
func execute(args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
