package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rexpark/Arduino-SNMP/config"
	"github.com/rexpark/Arduino-SNMP/logging"
	"github.com/rexpark/Arduino-SNMP/metrics"
	"github.com/rexpark/Arduino-SNMP/snmppdu"
	"github.com/rexpark/Arduino-SNMP/snmptranslate"
	"github.com/rexpark/Arduino-SNMP/trapprocessor"
)

const (
	stopTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// trapLogHandler writes every trap it receives as one record of log, with
// OIDs named through tr.
func trapLogHandler(log logging.Logger, tr *snmptranslate.Translator) trapprocessor.Handler {
	return func(ctx context.Context, msg *snmppdu.TrapMessage) {
		name := ""
		if oid := msg.TrapOID(); oid != nil {
			name = tr.Translate(oid)
		}
		log.InfoContext(ctx, "trap",
			"trap", msg,
			"name", name,
			"community", msg.Community,
			"uptime", msg.Uptime(),
			"bindings", formatVarBinds(msg.VarBinds, tr),
		)
	}
}

func formatVarBinds(vbs []snmppdu.VarBind, tr *snmptranslate.Translator) string {
	var b strings.Builder
	for i, vb := range vbs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tr.Translate(vb.OID))
		b.WriteByte('=')
		if vb.Value.Type == snmppdu.TypeObjectIdentifier {
			b.WriteString(tr.Translate(vb.Value.OID))
		} else {
			b.WriteString(vb.Value.String())
		}
	}
	return b.String()
}

// newTranslator loads the MIB directories on top of the built-in names.
// A directory that fails to load is logged and skipped.
func newTranslator(dirs []string, logger logging.Logger) *snmptranslate.Translator {
	tr := snmptranslate.New()
	for _, dir := range dirs {
		added, err := tr.LoadDir(dir)
		if err != nil {
			logger.Warn("failed to load MIB directory", "dir", dir, "error", err)
		}
		if added > 0 {
			logger.Info("loaded MIB definitions", "dir", dir, "definitions", added)
		}
	}
	return tr
}

// service owns the running listener and replaces it when the listener
// configuration changes.
type service struct {
	registry *trapprocessor.Registry
	observer trapprocessor.Observer
	logger   logging.Logger

	mu      sync.Mutex
	current *trapprocessor.Listener
}

func newService(registry *trapprocessor.Registry, observer trapprocessor.Observer, logger logging.Logger) *service {
	return &service{registry: registry, observer: observer, logger: logger}
}

// addr returns the local address of the running listener, nil when none.
func (s *service) addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Addr()
}

func (s *service) start(ctx context.Context, cfg trapprocessor.ListenerConfig) (*trapprocessor.Listener, error) {
	l, err := trapprocessor.NewListener(cfg, s.registry,
		trapprocessor.WithLogger(s.logger),
		trapprocessor.WithObserver(s.observer),
	)
	if err != nil {
		return nil, err
	}
	if err := l.Start(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = l
	s.mu.Unlock()
	return l, nil
}

func (s *service) stop(l *trapprocessor.Listener) error {
	s.mu.Lock()
	if s.current == l {
		s.current = nil
	}
	s.mu.Unlock()

	l.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return l.Join(ctx)
}

// run starts a listener with cfg and keeps one running until ctx is done.
// Each value received on reloads replaces the listener; if the new
// configuration cannot be bound the previous one is restored.
func (s *service) run(ctx context.Context, cfg trapprocessor.ListenerConfig, reloads <-chan trapprocessor.ListenerConfig) error {
	l, err := s.start(ctx, cfg)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return s.stop(l)

		case <-l.Done():
			err := s.stop(l)
			if err == nil && ctx.Err() == nil {
				err = errors.New("listener stopped unexpectedly")
			}
			return err

		case next := <-reloads:
			if reflect.DeepEqual(next, l.Config()) {
				s.logger.Debug("listener configuration unchanged")
				continue
			}

			s.logger.Info("restarting listener with new configuration", "address", next.Address())
			if err := s.stop(l); err != nil {
				return fmt.Errorf("stop listener: %w", err)
			}

			nl, err := s.start(ctx, next)
			if err != nil {
				s.logger.Error("new listener configuration rejected, restoring previous", "error", err)
				if nl, err = s.start(ctx, cfg); err != nil {
					return fmt.Errorf("restore listener: %w", err)
				}
			} else {
				cfg = next
			}
			l = nl
		}
	}
}

// reloadQueue keeps only the most recent pending configuration.
type reloadQueue chan trapprocessor.ListenerConfig

func (q reloadQueue) push(cfg trapprocessor.ListenerConfig) {
	for {
		select {
		case q <- cfg:
			return
		default:
		}
		select {
		case <-q:
		default:
		}
	}
}

// watchReloads turns configuration file changes into listener restarts and
// log level updates.
func watchReloads(manager config.Manager, cmd *cobra.Command, o *overrides, q reloadQueue, logger logging.Logger) {
	manager.OnConfigChange(func(err error) {
		if err != nil {
			logger.Warn("configuration reload failed, keeping current settings", "error", err)
			return
		}

		s, err := loadSettings(manager)
		if err == nil {
			err = o.apply(cmd, &s)
		}
		if err != nil {
			logger.Warn("reloaded configuration is invalid, keeping current settings", "error", err)
			return
		}

		if err := logging.SetLevel(s.Logging.Level); err != nil {
			logger.Warn("failed to update log level", "error", err)
		}
		logger.Info("configuration reloaded")
		q.push(s.Listener)
	})
}

// listenAndServe creates a TCP listener using lc and serves HTTP requests
// until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg metricsSettings, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenCmd(o *overrides) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive traps and write them to the trap log",
		Long: "listen binds the trap port, accepts traps whose community and version " +
			"match the configuration and writes each one to the trap log until " +
			"interrupted. Changes to the configuration file restart the listener.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, cmd, o, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML or JSON)")
	bindOverrides(cmd, o)

	return cmd
}

func runListen(ctx context.Context, cmd *cobra.Command, o *overrides, configPath string) error {
	manager, err := newConfigManager(configPath, true)
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

	if err := logging.Init(s.Logging); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logging.Shutdown() }()
	logger := logging.GetLogger()

	trapLog, closer, err := logging.NewLogger(s.TrapLog)
	if err != nil {
		return fmt.Errorf("open trap log: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	tr := newTranslator(s.MIBDirs, logger)
	registry := trapprocessor.NewRegistry()
	if err := registry.RegisterDefault(trapLogHandler(trapLog, tr)); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	svc := newService(registry, collector, logger)

	reloads := make(reloadQueue, 1)
	if configPath != "" {
		watchReloads(manager, cmd, o, reloads, logger)
	}

	logger.Info("traplistener starting",
		"version", version,
		"config", configPath,
		"trap_log", s.TrapLog.Output,
		"metrics", s.Metrics.Enabled,
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.run(gCtx, s.Listener, reloads)
	})

	if s.Metrics.Enabled {
		metricsSrv := newMetricsServer(s.Metrics, reg)
		lc := net.ListenConfig{}

		g.Go(func() error {
			logger.Info("metrics server listening", "addr", s.Metrics.Address, "path", s.Metrics.Path)
			return listenAndServe(gCtx, &lc, metricsSrv, s.Metrics.Address)
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("traplistener exited with error", "error", err)
		return err
	}
	logger.Info("traplistener stopped")
	return nil
}
