// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nivex/fastgate/internal/classifier"
	"github.com/nivex/fastgate/internal/command"
	"github.com/nivex/fastgate/internal/config"
	"github.com/nivex/fastgate/internal/event"
	logpkg "github.com/nivex/fastgate/internal/log"
	"github.com/nivex/fastgate/internal/metrics"
	"github.com/nivex/fastgate/internal/source"
	"github.com/nivex/fastgate/internal/source/afpacket"
	"github.com/nivex/fastgate/internal/whitelist"
)

// Daemon manages the fastgate daemon process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	tables        *whitelist.Tables
	emitter       *event.Emitter
	sink          *event.ChannelSink
	consumer      *event.Consumer
	resolver      *classifier.Resolver
	classifier    *classifier.Classifier
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled
	capture       source.Source   // nil if capture disabled
	captureDone   chan struct{}   // closed when the classify loop exits

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal // promoted from Run() local for cleanup in Stop()
}

// New creates a new Daemon instance.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	// Load global configuration
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// CLI flags override config values when set
	if socketPath == "" {
		socketPath = globalConfig.Control.Socket
	}
	if pidFile == "" {
		pidFile = globalConfig.Control.PIDFile
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := logpkg.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting fastgate daemon",
		"version", "0.1.0",
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Create whitelist tables and preload static rules
	d.tables = whitelist.New(
		d.config.Filter.SrcV4Capacity,
		d.config.Filter.SrcV6Capacity,
		d.config.Filter.DstPortCapacity,
	)
	for i, rule := range d.config.Filter.Rules {
		if err := command.ApplyRule(d.tables, rule); err != nil {
			return fmt.Errorf("failed to apply static rule %d: %w", i, err)
		}
	}
	metrics.WhitelistEntries.WithLabelValues("src_v4").Set(float64(d.tables.SrcV4.Len()))
	metrics.WhitelistEntries.WithLabelValues("src_v6").Set(float64(d.tables.SrcV6.Len()))
	metrics.WhitelistEntries.WithLabelValues("dst_port").Set(float64(d.tables.DstPort.Len()))
	slog.Info("whitelist tables initialized",
		"src_v4", d.tables.SrcV4.Len(),
		"src_v6", d.tables.SrcV6.Len(),
		"dst_port", d.tables.DstPort.Len(),
	)

	// 5. Create the event pipeline
	minSev, err := event.ParseSeverity(d.config.Events.MinSeverity)
	if err != nil {
		return fmt.Errorf("invalid events.min_severity: %w", err)
	}
	d.sink = event.NewChannelSink(d.config.Events.BufferSize)
	d.emitter = event.NewEmitter(d.sink, minSev)
	d.consumer = event.NewConsumer(d.sink, d.emitter)
	go d.consumer.Run(d.ctx)

	// 6. Create the classifier with its queue endpoint registered.
	// The daemon's consumer loop is the only local endpoint; without
	// this registration every redirect would degrade to pass.
	d.resolver = classifier.NewResolver()
	if err := d.resolver.Register(d.config.Filter.QueueIndex, int64(os.Getpid())); err != nil {
		return fmt.Errorf("failed to register queue endpoint: %w", err)
	}
	d.classifier = classifier.New(d.tables, d.emitter, d.resolver, d.config.Filter.QueueIndex)

	// 7. Create command handler
	d.cmdHandler = command.NewCommandHandler(d.tables, d.emitter)

	// 8. Wire shutdown handler so daemon_shutdown command can trigger graceful stop
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	// 9. Start UDS server for CLI control
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("uds server failed", "error", err)
		}
	}()

	// 10. Start the live capture loop (if enabled)
	if d.config.Capture.Enabled {
		if err := d.startCapture(); err != nil {
			return fmt.Errorf("failed to start capture: %w", err)
		}
	}

	slog.Info("daemon started successfully")
	return nil
}

// captureDrainTimeout bounds the wait for the classify loop to notice
// cancellation; one capture poll interval is the expected latency.
const captureDrainTimeout = 3 * time.Second

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Cancel the context first so the classify loop and the event
	// consumer wind down before their sources are closed under them.
	d.cancel()

	// 2. Wait for the classify loop, then close the capture handle
	if d.capture != nil {
		select {
		case <-d.captureDone:
		case <-time.After(captureDrainTimeout):
			slog.Warn("classify loop did not drain in time")
		}
		slog.Info("stopping capture")
		if err := d.capture.Stop(); err != nil {
			slog.Error("error stopping capture", "error", err)
		}
		d.capture = nil // prevent double-stop on repeated calls
	}

	// 3. Stop UDS server (no new CLI commands)
	slog.Info("stopping uds server")
	d.udsServer.Stop()

	// 4. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 5. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 6. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully",
		"events_emitted", d.emitter.Emitted(),
		"events_dropped", d.emitter.Dropped(),
	)
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS
//  3. SIGHUP triggers config reload
func (d *Daemon) Run() error {
	// Setup signal handling
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				} else {
					slog.Info("configuration reloaded successfully")
				}
			}

		case <-d.shutdownChan:
			// Shutdown triggered by daemon_shutdown command
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			// Context cancelled externally
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads the global configuration.
// Hot-reloadable: log level/format, events.min_severity.
// Cold (requires restart): capacities, capture device, listen addresses.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}

	// 1. Re-initialize logging with new config (log level + format)
	oldLevel := d.config.Log.Level
	oldFormat := d.config.Log.Format
	if err := logpkg.Init(newConfig.Log); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
		// Non-fatal: old logging continues
	} else if newConfig.Log.Level != oldLevel || newConfig.Log.Format != oldFormat {
		hotReloaded = append(hotReloaded, "log")
	}

	// 2. Update the event severity floor if changed
	if newConfig.Events.MinSeverity != d.config.Events.MinSeverity {
		sev, sevErr := event.ParseSeverity(newConfig.Events.MinSeverity)
		if sevErr == nil {
			d.emitter.SetMinSeverity(sev)
			hotReloaded = append(hotReloaded, "events.min_severity")
		} else {
			slog.Warn("invalid events.min_severity, ignoring",
				"value", newConfig.Events.MinSeverity, "error", sevErr)
		}
	}

	// 3. Warn about cold-reload items that changed
	requiresRestart := []string{}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}
	if newConfig.Capture.Device != d.config.Capture.Device {
		requiresRestart = append(requiresRestart, "capture.device")
	}
	if newConfig.Filter.QueueIndex != d.config.Filter.QueueIndex {
		requiresRestart = append(requiresRestart, "filter.queue_index")
	}

	d.config = newConfig

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)

	return nil
}

// TriggerShutdown requests graceful shutdown. Repeated triggers while
// a shutdown is already pending are no-ops, so the daemon_shutdown
// command can arrive any number of times.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
		// A shutdown is already pending
	}
}

// Classifier exposes the decision engine, mainly for replay runs.
func (d *Daemon) Classifier() *classifier.Classifier {
	return d.classifier
}

// startCapture opens the AF_PACKET source and runs the classify loop.
func (d *Daemon) startCapture() error {
	src, err := afpacket.NewSource(d.config.Capture)
	if err != nil {
		return fmt.Errorf("failed to create capture source: %w", err)
	}
	if err := src.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to open device %s: %w", d.config.Capture.Device, err)
	}
	d.capture = src

	slog.Info("capture started", "device", d.config.Capture.Device)

	d.captureDone = make(chan struct{})
	go func() {
		defer close(d.captureDone)
		classifyLoop(d.ctx, src, d.classifier, metrics.FramesTotal.WithLabelValues("afpacket"))
	}()
	return nil
}

// classifyLoop feeds frames from src through the classifier until the
// context is cancelled or the source is exhausted.
func classifyLoop(ctx context.Context, src source.Source, cls *classifier.Classifier, frames prometheus.Counter) {
	for {
		if ctx.Err() != nil {
			return
		}

		data, _, err := src.ReadPacket()
		if err != nil {
			if err == io.EOF {
				slog.Info("capture source exhausted")
				return
			}
			// Poll timeouts surface as errors on an idle device.
			continue
		}

		frames.Inc()
		cls.Classify(data)
	}
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
