package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"bnpl/internal/api"
	"bnpl/internal/config"
	"bnpl/internal/logging"
	"bnpl/internal/plugin"
	"bnpl/internal/preflight"
	"bnpl/internal/services"
	"bnpl/internal/storage"
)

// Daemon serves the API for one configuration and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	lib    *storage.Library
	reg    *plugin.Registry
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	server  *httpServer
	cancel  context.CancelFunc
	checks  []preflight.Result
	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Address      string             `json:"address,omitempty"`
	LockFilePath string             `json:"lock_file_path"`
	Checks       []preflight.Result `json:"checks,omitempty"`
}

// New constructs a daemon. lib may be nil when no storage is configured; the
// storage routes then report a configuration error.
func New(cfg *config.Config, lib *storage.Library, reg *plugin.Registry, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || reg == nil {
		return nil, errors.New("daemon requires config and plugin registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "bnpld.lock")
	return &Daemon{
		cfg:      cfg,
		lib:      lib,
		reg:      reg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, runs the preflight checks and starts listening.
// It refuses to start when a required check fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another bnpl daemon instance is already running")
	}

	d.checks = preflight.RunAll(ctx, d.cfg, nil)
	preflight.Log(ctx, d.logger, d.checks)
	if failed := preflight.Failed(d.checks); len(failed) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(failed))
		for _, f := range failed {
			names = append(names, f.Name)
		}
		return services.Wrap(services.ErrPrecondition, "daemon", "preflight",
			"failed checks: "+strings.Join(names, ", "), nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	handler := api.New(d.cfg, d.lib, d.reg, d.logger).Handler()
	server := newHTTPServer(d.cfg.API.Bind, handler, d.logger)
	if err := server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.server = server
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("bnpl daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", server.addr()))
	return nil
}

// Stop shuts the listener down and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.server = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("bnpl daemon stopped")
}

// Close stops the daemon and closes the library.
func (d *Daemon) Close() error {
	d.Stop()
	if d.lib != nil {
		return d.lib.Close()
	}
	return nil
}

// Addr returns the listening address, or "" when not serving.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.server.addr()
}

// Status returns the current daemon status with the checks run at start.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Address:      d.server.addr(),
		LockFilePath: d.lockPath,
		Checks:       d.checks,
	}
}
