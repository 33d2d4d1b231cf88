package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrScheduledWork wraps any failure raised by deferred work.
var ErrScheduledWork = errors.New("scheduled work failed")

// Work is a unit of deferred work. Its context is canceled once the task is
// superseded by a newer Schedule, canceled, or the scheduler stops.
type Work func(ctx context.Context) error

// Stats holds scheduler counters.
type Stats struct {
	Scheduled int `json:"scheduled"`
	Fired     int `json:"fired"`
	Canceled  int `json:"canceled"`
	Failed    int `json:"failed"`
}

type task struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	work   Work
	fired  bool
}

// Debouncer coalesces bursts of Schedule calls into one delayed invocation.
// At most one task is pending at any time.
type Debouncer struct {
	config *Config
	logger *zap.Logger

	mu      sync.Mutex
	gen     uint64
	current *task
	stats   Stats

	jobs chan *task
	// exec serializes work so two generations never overlap.
	exec sync.Mutex

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a new debouncer. Call Start before scheduling work.
func New(cfg *Config, logger *zap.Logger) *Debouncer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Debouncer{
		config: cfg,
		logger: logger,
		jobs:   make(chan *task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker pool.
func (d *Debouncer) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	workers := d.config.GetWorkers()
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Debug("scheduler started", zap.Int("workers", workers))
}

// Stop cancels pending work and waits for the worker pool to exit.
func (d *Debouncer) Stop() {
	d.CancelAll()
	d.cancel()
	d.wg.Wait()
	d.logger.Debug("scheduler stopped")
}

// Schedule cancels the pending task, if any, and arranges for work to run
// after delay on the worker pool. A delay of zero or less uses the
// configured quiet period.
func (d *Debouncer) Schedule(delay time.Duration, work Work) {
	if work == nil {
		return
	}
	if delay <= 0 {
		delay = d.config.QuietPeriod
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil {
		return
	}
	d.cancelLocked()

	d.gen++
	ctx, cancel := context.WithCancel(d.ctx)
	t := &task{
		gen:    d.gen,
		ctx:    ctx,
		cancel: cancel,
		work:   work,
	}
	t.timer = time.AfterFunc(delay, func() { d.fire(t) })
	d.current = t
	d.stats.Scheduled++
}

// CancelAll prevents the pending task from running. It is a no-op when
// nothing is pending.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// cancelLocked must be called with d.mu held.
func (d *Debouncer) cancelLocked() {
	t := d.current
	if t == nil {
		return
	}
	d.current = nil
	if t.timer.Stop() {
		d.stats.Canceled++
	}
	t.cancel()
}

// fire runs on the timer goroutine and hands the task to the pool.
func (d *Debouncer) fire(t *task) {
	if !d.isCurrent(t) {
		return
	}
	select {
	case d.jobs <- t:
	case <-t.ctx.Done():
	}
}

func (d *Debouncer) isCurrent(t *task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current == t && t.ctx.Err() == nil
}

// worker executes fired tasks until the scheduler stops.
func (d *Debouncer) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case t := <-d.jobs:
			d.run(t)
		}
	}
}

// run executes one task. Failures are logged and counted, never propagated.
func (d *Debouncer) run(t *task) {
	d.exec.Lock()
	defer d.exec.Unlock()

	d.mu.Lock()
	if d.current != t || t.ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	// The task stays current so a later Schedule or CancelAll cancels its
	// context; that is how deferred effects detect they went stale.
	t.fired = true
	d.stats.Fired++
	d.mu.Unlock()

	if err := d.invoke(t); err != nil {
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()
		d.logger.Warn("scheduled work failed", zap.Uint64("generation", t.gen), zap.Error(err))
	}
}

func (d *Debouncer) invoke(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrScheduledWork, r)
		}
	}()
	if err := t.work(t.ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrScheduledWork, err)
	}
	return nil
}

// Pending reports whether a task is waiting for its delay to elapse.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil && !d.current.fired
}

// Stats returns current scheduler statistics.
func (d *Debouncer) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
