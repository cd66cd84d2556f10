package main

import (
	_ "embed"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rexpark/Arduino-SNMP/config"
	"github.com/rexpark/Arduino-SNMP/logging"
	"github.com/rexpark/Arduino-SNMP/trapprocessor"
)

//go:embed schema.cue
var schemaCUE string

// settings is the resolved process configuration.
type settings struct {
	Listener trapprocessor.ListenerConfig
	Logging  logging.Config
	TrapLog  logging.Config
	MIBDirs  []string
	Metrics  metricsSettings
}

type metricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// newConfigManager loads the embedded schema and, when path is set, the
// configuration file on top of it.
func newConfigManager(path string, hotReload bool) (config.Manager, error) {
	manager, err := config.NewManager(config.Options{
		SchemaContent:         schemaCUE,
		ConfigPath:            path,
		EnableConfigHotReload: hotReload && path != "",
	})
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return manager, nil
}

// loadSettings reads every section from p. Schema defaults cover absent
// keys, the explicit defaults below only matter for providers without a
// schema.
func loadSettings(p config.Provider) (settings, error) {
	var s settings

	listener, err := trapprocessor.ParseConfig(p)
	if err != nil {
		return s, err
	}
	s.Listener = listener

	s.Logging = logging.DefaultConfig()
	if s.Logging.Level, err = p.GetString("logging.level", logging.LevelInfo); err != nil {
		return s, err
	}
	if s.Logging.Format, err = p.GetString("logging.format", logging.FormatLogfmt); err != nil {
		return s, err
	}
	if s.Logging.Output, err = p.GetString("logging.output", "stdout"); err != nil {
		return s, err
	}
	if s.Logging.AddSource, err = p.GetBool("logging.add_source", false); err != nil {
		return s, err
	}

	s.TrapLog = logging.Config{Level: logging.LevelInfo}
	if s.TrapLog.Output, err = p.GetString("traplog.path", "traps.log"); err != nil {
		return s, err
	}
	if s.TrapLog.Format, err = p.GetString("traplog.format", logging.FormatLogfmt); err != nil {
		return s, err
	}

	if s.MIBDirs, err = p.GetStringSlice("traplog.mib_dirs", nil); err != nil {
		return s, err
	}

	if s.Metrics.Enabled, err = p.GetBool("metrics.enabled", false); err != nil {
		return s, err
	}
	if s.Metrics.Address, err = p.GetString("metrics.address", ":9162"); err != nil {
		return s, err
	}
	if s.Metrics.Path, err = p.GetString("metrics.path", "/metrics"); err != nil {
		return s, err
	}

	return s, nil
}

// overrides holds command line values that take precedence over the file.
type overrides struct {
	port        int
	bindAddress string
	community   string
	trapLog     string
	logLevel    string
	logFormat   string
	metrics     string
}

// apply copies every flag the user actually set onto s.
func (o *overrides) apply(cmd *cobra.Command, s *settings) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		s.Listener.Port = o.port
	}
	if flags.Changed("bind") {
		s.Listener.BindAddress = o.bindAddress
	}
	if flags.Changed("community") {
		s.Listener.Community = o.community
	}
	if flags.Changed("log-file") {
		s.TrapLog.Output = o.trapLog
	}
	if flags.Changed("log-level") {
		s.Logging.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		s.Logging.Format = o.logFormat
	}
	if flags.Changed("metrics-address") {
		s.Metrics.Enabled = true
		s.Metrics.Address = o.metrics
	}

	if err := s.Listener.Validate(); err != nil {
		return fmt.Errorf("invalid listener settings: %w", err)
	}
	if !logging.ValidateLevel(s.Logging.Level) {
		return fmt.Errorf("invalid log level %q", s.Logging.Level)
	}
	if !logging.ValidateFormat(s.Logging.Format) {
		return fmt.Errorf("invalid log format %q", s.Logging.Format)
	}
	return nil
}

// bindOverrides registers the flags shared by listen and config.
func bindOverrides(cmd *cobra.Command, o *overrides) {
	flags := cmd.Flags()
	flags.IntVarP(&o.port, "port", "p", trapprocessor.DefaultPort, "UDP port to listen on (0 picks a free port)")
	flags.StringVar(&o.bindAddress, "bind", trapprocessor.DefaultBindAddress, "local address to bind")
	flags.StringVarP(&o.community, "community", "c", trapprocessor.DefaultCommunity, "accepted community string")
	flags.StringVar(&o.trapLog, "log-file", "traps.log", "file receiving one line per trap")
	flags.StringVar(&o.metrics, "metrics-address", ":9162", "serve Prometheus metrics on this address")
}
