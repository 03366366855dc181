package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"crucible/internal/config"
	"crucible/internal/events"
	"crucible/internal/logging"
	"crucible/internal/pipeline"
	"crucible/internal/storage"
	"crucible/internal/tasks"
)

// Daemon coordinates the pipeline, event fan-out, and HTTP surface, and
// enforces single-instance execution via a lock file.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *tasks.Registry
	broadcaster *events.Broadcaster
	runner      *pipeline.Runner
	store       *storage.Store

	api      *apiServer
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, registry *tasks.Registry, broadcaster *events.Broadcaster, runner *pipeline.Runner, store *storage.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || registry == nil || broadcaster == nil || runner == nil || store == nil {
		return nil, errors.New("daemon requires config, registry, broadcaster, runner, and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "crucibled.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger.With(logging.String(logging.FieldComponent, "daemon")),
		registry:    registry,
		broadcaster: broadcaster,
		runner:      runner,
		store:       store,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and brings up the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another crucible daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("crucible daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.api.addr()))
	return nil
}

// Stop drains the pipeline, closes the API and broadcaster, and releases
// the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.running.Store(false)

	if d.cancel != nil {
		d.cancel()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.runner.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("pipeline shutdown incomplete", logging.Error(err))
	}
	d.api.stop()
	d.broadcaster.Close()
	if err := d.store.Close(); err != nil {
		d.logger.Warn("close artifact store", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.logger.Info("crucible daemon stopped")
}

// Addr reports the bound API address, useful when binding to port 0.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Wait blocks until the daemon context ends.
func (d *Daemon) Wait() {
	if d.ctx != nil {
		<-d.ctx.Done()
	}
}
