package features

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/config"
	"github.com/fentz26/smartterm/internal/dispatch"
	"github.com/fentz26/smartterm/internal/scheduler"
)

// DefaultReloadDelay coalesces the burst of events an editor save produces.
const DefaultReloadDelay = 200 * time.Millisecond

// Watcher reloads the config file when it changes and pushes the new
// feature switches into a Gate.
type Watcher struct {
	path   string
	gate   *Gate
	sched  *scheduler.Debouncer
	notify *dispatch.Loop // runs OnReload callbacks in order
	delay  time.Duration
	logger *zap.Logger

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	onReload  []func(*config.Config)
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	reloads   int
	lastError error
}

// NewWatcher creates a watcher for the config file at path. The parent
// directory is watched so editors that replace the file are handled.
func NewWatcher(path string, gate *Gate, delay time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		path:    abs,
		gate:    gate,
		sched:   scheduler.New(&scheduler.Config{QuietPeriod: delay, Workers: 1}, logger.Named("reload")),
		notify:  dispatch.NewLoop(logger.Named("reload")),
		delay:   delay,
		logger:  logger,
		watcher: fw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// OnReload registers fn to receive every successfully reloaded config.
// Callbacks run one at a time on the watcher's own goroutine, after the gate
// has been updated; a slow callback does not hold up the next reload.
func (w *Watcher) OnReload(fn func(*config.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.sched.Start()
	w.logger.Debug("watching config", zap.String("path", w.path))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.notify.Close()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.sched.Stop()
	w.notify.Close()

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("error closing watcher", zap.Error(err))
	}
}

// Reloads returns how many reloads succeeded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// LastError returns the error of the most recent failed reload.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("config changed", zap.String("op", event.Op.String()))
	w.sched.Schedule(w.delay, func(ctx context.Context) error {
		return w.reload()
	})
}

// reload re-reads the config. A broken file keeps the previous switches.
func (w *Watcher) reload() error {
	cfg, err := config.Load(w.path)

	w.mu.Lock()
	if err != nil {
		w.lastError = err
		w.mu.Unlock()
		return err
	}
	w.reloads++
	w.lastError = nil
	callbacks := append([]func(*config.Config){}, w.onReload...)
	w.mu.Unlock()

	w.gate.Set(cfg.Features)
	if len(callbacks) > 0 {
		w.notify.Dispatch(func() {
			for _, fn := range callbacks {
				fn(cfg)
			}
		})
	}
	w.logger.Info("config reloaded", zap.Int("features", len(cfg.Features)))
	return nil
}
