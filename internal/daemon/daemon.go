// Package daemon assembles the operator console core: event bus, state
// store, transports, pipeline and console facade, run under a service host
// with ordered startup and reverse-order shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/softrobotics/wizard/internal/config"
	"github.com/softrobotics/wizard/internal/console"
	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/moderation"
	"github.com/softrobotics/wizard/internal/observability"
	"github.com/softrobotics/wizard/internal/pipeline"
	daemonruntime "github.com/softrobotics/wizard/internal/runtime"
	"github.com/softrobotics/wizard/internal/statestore"
	"github.com/softrobotics/wizard/internal/transport"
)

// serviceOpTimeout bounds context deadlines for graceful service shutdown.
const serviceOpTimeout = 5 * time.Second

// Options groups the dependencies required to construct a Daemon.
type Options struct {
	Config config.Config
	// Logger receives all component output. Nil uses log.Default().
	Logger *log.Logger
	// PIDFile, when set, is written on Start and removed on exit.
	PIDFile string
}

// Daemon wires the console core together and owns its run loop.
type Daemon struct {
	cfg       config.Config
	logger    *log.Logger
	pidFile   string
	bus       *eventbus.Bus
	store     *statestore.Store
	broker    *moderation.Broker
	message   *transport.MessageClient
	video     *transport.VideoClient
	coord     *pipeline.Coordinator
	console   *console.Console
	exporter  *observability.PrometheusExporter
	host      *daemonruntime.ServiceHost
	lifecycle *daemonruntime.Lifecycle

	ctx    context.Context
	cancel context.CancelFunc

	errMu  sync.Mutex
	runErr error
}

// New builds the daemon from resolved configuration.
func New(opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	counter := observability.NewEventCounter()
	bus := eventbus.New(
		eventbus.WithLogger(logger),
		eventbus.WithObserver(counter),
	)

	store := statestore.New(bus)
	broker := moderation.New(bus, logger)

	messageClient := transport.NewMessageClient(bus, transport.MessageConfig{
		URL:            opts.Config.MessageSocketURL(),
		ConnectTimeout: opts.Config.ConnectTimeout,
		Backoff:        opts.Config.Backoff(),
		Logger:         logger,
	})
	videoClient := transport.NewVideoClient(bus, transport.VideoConfig{
		URL:            opts.Config.VideoSocketURL(),
		ConnectTimeout: opts.Config.ConnectTimeout,
		Backoff:        opts.Config.Backoff(),
		Logger:         logger,
	})

	coord := pipeline.New(bus, store, broker, messageClient, pipeline.Config{
		UserClearGrace:    opts.Config.UserClearGrace,
		KeepaliveInterval: opts.Config.KeepaliveInterval,
		Logger:            logger,
	})

	ui := console.New(bus, store, coord, broker, logger)

	exporter := observability.NewPrometheusExporter(bus, counter)
	exporter.WithStoreCounters(store)
	exporter.WithVideoMetrics(videoClient)

	// The pipeline subscribes before either transport dials so no
	// connection event can slip past it; shutdown runs in reverse, draining
	// the transports first.
	host := daemonruntime.NewServiceHost()
	if err := host.Register("pipeline", coord); err != nil {
		return nil, fmt.Errorf("daemon: register pipeline: %w", err)
	}
	if err := host.Register("message-transport", messageClient); err != nil {
		return nil, fmt.Errorf("daemon: register message transport: %w", err)
	}
	if err := host.Register("video-transport", videoClient); err != nil {
		return nil, fmt.Errorf("daemon: register video transport: %w", err)
	}

	return &Daemon{
		cfg:       opts.Config,
		logger:    logger,
		pidFile:   opts.PIDFile,
		bus:       bus,
		store:     store,
		broker:    broker,
		message:   messageClient,
		video:     videoClient,
		coord:     coord,
		console:   ui,
		exporter:  exporter,
		host:      host,
		lifecycle: daemonruntime.NewLifecycle(),
	}, nil
}

// Start runs the daemon until Shutdown is called or the parent context is
// cancelled. It returns the first fatal service error, if any.
func (d *Daemon) Start(parent context.Context) error {
	if d.pidFile != "" {
		if err := daemonruntime.WritePIDFile(d.pidFile, os.Getpid()); err != nil {
			return fmt.Errorf("daemon: write pid file: %w", err)
		}
		defer daemonruntime.RemovePIDFile(d.pidFile)
	}

	d.ctx, d.cancel = context.WithCancel(parent)
	defer d.cancel()

	if err := d.host.Start(d.ctx); err != nil {
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()

	// The store boots in manual mode; apply the configured mode once the
	// pipeline is running so the change lands on the bus.
	if d.cfg.Mode != d.store.Mode() {
		d.coord.SetMode(d.ctx, d.cfg.Mode)
	}
	d.logger.Printf("[daemon] running (server=%s mode=%s)", d.cfg.ServerURL, d.cfg.Mode)

	select {
	case <-d.lifecycle.Done():
	case <-parent.Done():
	}

	d.cancel()

	// Freeze delivery so stopping services do not observe half-torn-down
	// peers; history keeps recording for shutdown diagnostics.
	d.bus.Pause()

	stopCtx, cancel := context.WithTimeout(context.Background(), serviceOpTimeout)
	defer cancel()
	if err := d.host.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Printf("[daemon] service shutdown error: %v", err)
		d.setRunError(err)
	}

	d.bus.Shutdown()
	return d.runError()
}

// Shutdown signals the daemon to stop. Safe to call more than once.
func (d *Daemon) Shutdown() {
	d.lifecycle.Shutdown()
}

// Console returns the operator facade.
func (d *Daemon) Console() *console.Console { return d.console }

// Exporter returns the metrics exposition surface.
func (d *Daemon) Exporter() *observability.PrometheusExporter { return d.exporter }

// Bus returns the event bus, for subscribers owned by outer surfaces.
func (d *Daemon) Bus() *eventbus.Bus { return d.bus }

func (d *Daemon) watchHostErrors() {
	go func() {
		for err := range d.host.Errors() {
			if err == nil {
				continue
			}
			d.setRunError(err)
			d.logger.Printf("[daemon] fatal service error: %v", err)
			d.lifecycle.Shutdown()
		}
	}()
}

func (d *Daemon) setRunError(err error) {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

func (d *Daemon) runError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}
