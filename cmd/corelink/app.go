package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corelink/corelink-go/internal/config"
	"github.com/corelink/corelink-go/internal/observability"
	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/persistence"
	"github.com/corelink/corelink-go/pkg/session"
	"github.com/corelink/corelink-go/pkg/transport"
)

// app is the per-invocation environment shared by commands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	keystore persistence.Store
	capture  *log.FileLogger
	registry *prometheus.Registry

	closers []func() error
}

// newApp loads configuration and sets up logging.
func newApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	config.BindFlags(v, cmd.Flags())
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.SetupLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stderr)
	return &app{cfg: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

// openKeystore opens the configured token store.
func (a *app) openKeystore() (persistence.Store, error) {
	if a.keystore != nil {
		return a.keystore, nil
	}
	if a.cfg.Keystore.Backend != persistence.BackendMemory {
		if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	ks, err := persistence.Open(a.cfg.Keystore.Backend, a.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	a.keystore = ks
	a.closers = append(a.closers, ks.Close)
	return ks, nil
}

// protocolLogger returns the capture sink, or nil when capture is off.
func (a *app) protocolLogger() (log.Logger, error) {
	path := a.cfg.Observability.ProtocolLog
	if path == "" {
		return nil, nil
	}
	if a.capture == nil {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		a.capture = fl
		a.closers = append(a.closers, fl.Close)
		a.logger.Info("capturing protocol events", "path", path)
	}
	return a.capture, nil
}

// discoverer builds the configured discovery mechanism.
func (a *app) discoverer() (discovery.Discoverer, error) {
	return discovery.New(a.cfg.DiscoveryOptions(a.logger))
}

// metricsRegistry returns the process registry, created on first use.
func (a *app) metricsRegistry() *prometheus.Registry {
	if a.registry == nil {
		a.registry = observability.NewRegistry()
	}
	return a.registry
}

// sessionHooks are the upward callbacks a command wants.
type sessionHooks struct {
	onState func(session.State)
	onZones func([]byte)
	onQueue func(zoneID string, data []byte)
}

// newSession wires a Session from the configuration.
func (a *app) newSession(hooks sessionHooks) (*session.Session, error) {
	ks, err := a.openKeystore()
	if err != nil {
		return nil, err
	}
	plog, err := a.protocolLogger()
	if err != nil {
		return nil, err
	}
	tc, err := a.cfg.TransportClientConfig(a.logger, plog)
	if err != nil {
		return nil, err
	}
	disc, err := a.discoverer()
	if err != nil {
		return nil, err
	}

	var metrics *session.Metrics
	if a.cfg.Observability.MetricsAddr != "" {
		metrics = session.NewMetrics(a.metricsRegistry())
	}

	return session.New(session.Config{
		Identity:       a.cfg.Extension,
		Discovery:      disc,
		Transport:      transport.NewClient(tc, nil),
		Keystore:       ks,
		RequestTimeout: a.cfg.Session.RequestTimeout,
		QueueItemCount: a.cfg.Session.QueueItemCount,
		Logger:         a.logger,
		ProtocolLogger: plog,
		Metrics:        metrics,
		OnStateChange:  hooks.onState,
		OnZonesData:    hooks.onZones,
		OnQueueData:    hooks.onQueue,
	}), nil
}

// start begins connecting: directly when an address is configured,
// otherwise through discovery.
func (a *app) start(s *session.Session) error {
	if a.cfg.Core.HasAddress() {
		return s.ConnectDirect(a.cfg.Core.Host, a.cfg.Core.Port)
	}
	return s.Connect()
}

// close releases everything opened by the app in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// stateWaiter forwards state changes to a channel for commands that block
// until the session is connected.
type stateWaiter struct {
	ch chan session.State
}

func newStateWaiter() *stateWaiter {
	return &stateWaiter{ch: make(chan session.State, 64)}
}

func (w *stateWaiter) observe(s session.State) {
	select {
	case w.ch <- s:
	default:
	}
}

// waitConnected blocks until the session reports Connected.
func (w *stateWaiter) waitConnected(ctx context.Context, s *session.Session) error {
	if s.State().IsConnected() {
		return nil
	}
	for {
		select {
		case st := <-w.ch:
			if st.IsConnected() {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection (last state %s): %w", s.State(), ctx.Err())
		}
	}
}
