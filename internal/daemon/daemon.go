// Package daemon runs the mirror as a long-lived service: an HTTP trigger
// endpoint with optional HMAC verification, an optional periodic schedule,
// a Prometheus metrics listener, and live configuration reload.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.skarv.dev/infra/gitmirror/internal/config"
	"git.skarv.dev/infra/gitmirror/internal/history"
	"git.skarv.dev/infra/gitmirror/internal/logfields"
	"git.skarv.dev/infra/gitmirror/internal/metrics"
	"git.skarv.dev/infra/gitmirror/internal/mirror"
	"git.skarv.dev/infra/gitmirror/internal/notify"
)

// Daemon hosts the mirror engine behind HTTP and a schedule.
type Daemon struct {
	configPath string
	logger     *slog.Logger

	mu  sync.RWMutex
	cfg *config.Config

	secret   []byte
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
	store    history.Store
	notifier notify.Publisher

	workspaceDir string
	debounce     *debouncer

	// Single-flight state: one run at a time, at most one queued behind it.
	syncMu      sync.Mutex
	syncRunning bool
	syncPending bool

	// runEngine is swapped in tests.
	runEngine func(ctx context.Context) (*mirror.Result, error)
}

// New creates a daemon from a loaded configuration. The configPath is kept
// for live reload.
func New(configPath string, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon section missing from configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		registry:   prom.NewRegistry(),
		debounce:   newDebouncer(2 * time.Second),
	}
	d.recorder = metrics.NewPrometheusRecorder(d.registry)
	d.runEngine = d.runEngineOnce

	if cfg.Daemon.SecretFile != "" {
		secret, err := os.ReadFile(cfg.Daemon.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read trigger secret: %w", err)
		}
		d.secret = []byte(strings.TrimSpace(string(secret)))
	}

	if cfg.History != nil {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		d.store = store
	}

	notifier, err := notify.NewNATSPublisher(cfg.Notify)
	if err != nil {
		if d.store != nil {
			_ = d.store.Close()
		}
		return nil, err
	}
	if notifier != nil {
		d.notifier = notifier
	}

	return d, nil
}

// Run starts all daemon components and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.getConfig()

	d.logger.Info("Starting daemon",
		slog.String("listen_addr", cfg.Daemon.ListenAddr),
		slog.String("metrics_addr", cfg.Daemon.MetricsAddr))

	// Initial mirror pass so a freshly started daemon converges immediately.
	d.performMirror(ctx)

	if cfg.Daemon.Interval != "" {
		interval, err := time.ParseDuration(cfg.Daemon.Interval)
		if err != nil {
			return fmt.Errorf("invalid daemon interval %q: %w", cfg.Daemon.Interval, err)
		}
		scheduler, err := NewScheduler()
		if err != nil {
			return err
		}
		if err := scheduler.SchedulePeriodicMirror(interval, func() { d.performMirror(context.Background()) }); err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				d.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	watcher, err := NewConfigWatcher(d.configPath, d)
	if err != nil {
		d.logger.Warn("Config watcher unavailable, live reload disabled", logfields.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			d.logger.Warn("Config watcher failed to start", logfields.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	err = d.serveHTTP(ctx, cfg.Daemon.ListenAddr, cfg.Daemon.MetricsAddr)

	if d.store != nil {
		if cerr := d.store.Close(); cerr != nil {
			d.logger.Warn("History store close failed", logfields.Error(cerr))
		}
	}
	if d.notifier != nil {
		if cerr := d.notifier.Close(); cerr != nil {
			d.logger.Warn("Notifier close failed", logfields.Error(cerr))
		}
	}
	return err
}

// getConfig returns the current configuration snapshot.
func (d *Daemon) getConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// ReloadConfig swaps in a new configuration. Listener addresses are fixed
// for the lifetime of the process; everything the engine reads per run
// takes effect on the next mirror pass.
func (d *Daemon) ReloadConfig(newCfg *config.Config) error {
	if newCfg.Daemon == nil {
		return fmt.Errorf("reloaded configuration has no daemon section")
	}

	d.mu.Lock()
	old := d.cfg
	d.cfg = newCfg
	d.mu.Unlock()

	if old.Daemon.ListenAddr != newCfg.Daemon.ListenAddr || old.Daemon.MetricsAddr != newCfg.Daemon.MetricsAddr {
		d.logger.Warn("Listener address change requires a restart to take effect")
	}

	d.logger.Info("Configuration reloaded")
	return nil
}

// performMirror executes a mirror run with single-flight semantics. A run
// requested while one is in progress queues at most one follow-up; further
// requests collapse into that pending run.
func (d *Daemon) performMirror(ctx context.Context) {
	d.syncMu.Lock()
	if d.syncRunning {
		d.syncPending = true
		d.syncMu.Unlock()
		d.logger.Info("Mirror already in progress, queuing follow-up run")
		return
	}
	d.syncRunning = true
	d.syncMu.Unlock()

	for {
		if _, err := d.runEngine(ctx); err != nil {
			d.logger.Error("Mirror run failed", logfields.Error(err))
		}

		d.syncMu.Lock()
		if !d.syncPending {
			d.syncRunning = false
			d.syncMu.Unlock()
			return
		}
		d.syncPending = false
		d.syncMu.Unlock()

		d.logger.Info("Re-running mirror for queued request")
	}
}

func (d *Daemon) runEngineOnce(ctx context.Context) (*mirror.Result, error) {
	engine := mirror.NewEngine(d.getConfig(), d.logger, mirror.Options{
		WorkspaceDir: d.workspaceDir,
		Metrics:      d.recorder,
		History:      d.store,
		Notifier:     d.notifier,
	})
	return engine.Run(ctx)
}
