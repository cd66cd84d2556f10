package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rexpark/Arduino-SNMP/logging"
)

type listenerView struct {
	Port        int            `yaml:"port"`
	BindAddress string         `yaml:"bind_address"`
	Community   string         `yaml:"community"`
	Versions    []string       `yaml:"versions"`
	ReadTimeout string         `yaml:"read_timeout"`
	BufferSize  int            `yaml:"buffer_size"`
	ReusePort   bool           `yaml:"reuse_port"`
	WorkerPool  workerPoolView `yaml:"worker_pool"`
}

type workerPoolView struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type trapLogView struct {
	Path    string   `yaml:"path"`
	Format  string   `yaml:"format"`
	MIBDirs []string `yaml:"mib_dirs"`
}

// settingsView mirrors the configuration file layout.
type settingsView struct {
	Listener listenerView    `yaml:"listener"`
	Logging  logging.Config  `yaml:"logging"`
	TrapLog  trapLogView     `yaml:"traplog"`
	Metrics  metricsSettings `yaml:"metrics"`
}

func newSettingsView(s settings, showCommunity bool) settingsView {
	versions := make([]string, 0, len(s.Listener.Versions))
	for _, v := range s.Listener.Versions {
		versions = append(versions, v.String())
	}

	community := s.Listener.Community
	if !showCommunity && community != "" {
		community = "********"
	}

	return settingsView{
		Listener: listenerView{
			Port:        s.Listener.Port,
			BindAddress: s.Listener.BindAddress,
			Community:   community,
			Versions:    versions,
			ReadTimeout: s.Listener.ReadTimeout.String(),
			BufferSize:  s.Listener.BufferSize,
			ReusePort:   s.Listener.ReusePort,
			WorkerPool: workerPoolView{
				Enabled: s.Listener.WorkerPool.Enabled,
				Size:    s.Listener.WorkerPool.Size,
			},
		},
		Logging: s.Logging,
		TrapLog: trapLogView{Path: s.TrapLog.Output, Format: s.TrapLog.Format, MIBDirs: s.MIBDirs},
		Metrics: s.Metrics,
	}
}

func writeSettings(w io.Writer, s settings, showCommunity bool) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newSettingsView(s, showCommunity)); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return enc.Close()
}

func configCmd(o *overrides) *cobra.Command {
	var (
		configPath    string
		showCommunity bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: "config resolves schema defaults, the configuration file and command " +
			"line flags the same way listen does, and prints the result.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := newConfigManager(configPath, false)
			if err != nil {
				return err
			}
			defer manager.Close()

			s, err := loadSettings(manager)
			if err != nil {
				return err
			}
			if err := o.apply(cmd, &s); err != nil {
				return err
			}
			return writeSettings(cmd.OutOrStdout(), s, showCommunity)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML or JSON)")
	cmd.Flags().BoolVar(&showCommunity, "show-community", false, "print the community string instead of a mask")
	bindOverrides(cmd, o)

	return cmd
}
