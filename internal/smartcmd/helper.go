// Package smartcmd implements the smart command pipeline of a terminal
// session.
//
// While the user types, ProcessKeyPressed schedules a debounced preview that
// highlights the typed command on the cursor line when a handler exists for
// it, and shows a one-time hint about the smart execution shortcut. When the
// user submits with that shortcut, ProcessEnterKeyPressed runs the handler
// instead of the shell and erases the typed text with backspaces.
//
// Preview effects are applied on the Dispatcher goroutine. Every collaborator
// failure is downgraded to "disabled" or "no match"; the only thing callers
// observe is the boolean result of the commit path.
package smartcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/factcache"
	"github.com/fentz26/smartterm/internal/models"
	"github.com/fentz26/smartterm/internal/scheduler"
)

const (
	// FeatureID gates the whole pipeline.
	FeatureID = "terminal.shell.command.handling"
	// ProjectSettingKey prefixes the per-project enablement setting.
	ProjectSettingKey = "terminal.custom.command.execution"
	// GotItKey is the acknowledgement set when the hint is dismissed.
	GotItKey = "TERMINAL_CUSTOM_COMMANDS_GOT_IT"

	// DefaultShortcut is the key that runs a highlighted command.
	DefaultShortcut = "alt+enter"
	// DefaultQuietPeriod is the preview debounce delay.
	DefaultQuietPeriod = 50 * time.Millisecond
)

// ProjectSetting returns the settings key enabling smart commands for project.
func ProjectSetting(project string) string {
	if project == "" {
		return ProjectSettingKey
	}
	return ProjectSettingKey + ":" + project
}

// Backspace is the control byte written once per typed rune to erase a
// command that was handled.
const Backspace = 0x08

// Options configures a Helper. Session, Gate, Settings, Acks, Context, Matcher,
// Searcher, Input and Dispatcher are required.
type Options struct {
	Session string
	Project string

	Gate        FeatureGate
	Settings    Settings
	Acks        Acknowledgements
	Context     ContextProvider
	Matcher     Matcher
	Searcher    BufferSearcher
	Input       InputSink
	Notifier    Notifier
	Highlighter Highlighter
	Dispatcher  Dispatcher
	Usage       UsageRecorder

	// Shortcut is shown in the hint and, when ShortcutMatcher is nil, used to
	// build it.
	Shortcut        string
	ShortcutMatcher ShortcutMatcher

	// Scheduler is owned by the caller when set. Otherwise the Helper starts
	// its own with QuietPeriod and stops it on Close.
	Scheduler   *scheduler.Debouncer
	QuietPeriod time.Duration

	Logger *zap.Logger
}

// Helper is the smart command pipeline for one terminal session.
type Helper struct {
	session string
	project string

	gate        FeatureGate
	settings    Settings
	acks        Acknowledgements
	provider    ContextProvider
	matcher     Matcher
	searcher    BufferSearcher
	input       InputSink
	notifier    Notifier
	highlighter Highlighter
	dispatcher  Dispatcher
	usage       UsageRecorder

	shortcut      string
	matchShortcut ShortcutMatcher

	sched      *scheduler.Debouncer
	ownsSched  bool
	quietDelay time.Duration

	cwd  *factcache.Cache[string]
	busy *factcache.Cache[bool]

	state atomic.Int32

	mu       sync.Mutex
	notified bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// New creates a Helper.
func New(opts Options) (*Helper, error) {
	switch {
	case opts.Session == "":
		return nil, errors.New("smartcmd: session is required")
	case opts.Gate == nil, opts.Settings == nil, opts.Acks == nil:
		return nil, errors.New("smartcmd: gate, settings and acknowledgements are required")
	case opts.Context == nil, opts.Matcher == nil, opts.Searcher == nil:
		return nil, errors.New("smartcmd: context provider, matcher and searcher are required")
	case opts.Input == nil, opts.Dispatcher == nil:
		return nil, errors.New("smartcmd: input sink and dispatcher are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	shortcut := opts.Shortcut
	if shortcut == "" {
		shortcut = DefaultShortcut
	}
	matchShortcut := opts.ShortcutMatcher
	if matchShortcut == nil {
		matchShortcut = MatchShortcut(shortcut)
	}

	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	sched := opts.Scheduler
	ownsSched := false
	if sched == nil {
		sched = scheduler.New(&scheduler.Config{QuietPeriod: quiet, Workers: 1}, logger.Named("scheduler"))
		sched.Start()
		ownsSched = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Helper{
		session:       opts.Session,
		project:       opts.Project,
		gate:          opts.Gate,
		settings:      opts.Settings,
		acks:          opts.Acks,
		provider:      opts.Context,
		matcher:       opts.Matcher,
		searcher:      opts.Searcher,
		input:         opts.Input,
		notifier:      opts.Notifier,
		highlighter:   opts.Highlighter,
		dispatcher:    opts.Dispatcher,
		usage:         opts.Usage,
		shortcut:      shortcut,
		matchShortcut: matchShortcut,
		sched:         sched,
		ownsSched:     ownsSched,
		quietDelay:    quiet,
		cwd:           factcache.New[string](),
		busy:          factcache.New[bool](),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.With(zap.String("session", opts.Session)),
	}, nil
}

// State returns the current pipeline stage.
func (h *Helper) State() State {
	return State(h.state.Load())
}

func (h *Helper) setState(s State) {
	h.state.Store(int32(s))
}

// ProcessKeyPressed reacts to the typed text changing. When the feature is on,
// any pending preview is superseded by one for typed.
//
// A keystroke does not invalidate the cached working directory or busy
// state: those facts describe the session, not the typed text, and stay
// cached until OnCommandExecuted or a commit that does not run a handler.
func (h *Helper) ProcessKeyPressed(typed string) {
	if h.isClosed() || !h.featureEnabled() {
		return
	}

	trigger := models.Trigger{At: time.Now(), Text: typed}
	h.setState(GatedCheck)
	h.sched.Schedule(h.quietDelay, func(ctx context.Context) error {
		h.dispatcher.Dispatch(func() {
			if ctx.Err() != nil {
				return
			}
			h.preview(ctx, trigger)
		})
		return nil
	})
}

// preview runs on the dispatcher goroutine.
func (h *Helper) preview(ctx context.Context, trigger models.Trigger) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("preview lookup failed",
				zap.Error(fmt.Errorf("%w: panic: %v", ErrScheduledWork, r)))
			h.setHighlight(nil)
			h.setState(Idle)
		}
	}()

	if !h.enabledForProject() || trigger.Text == "" {
		h.setHighlight(nil)
		h.setState(Idle)
		return
	}

	q, ok := h.query(trigger.Text)
	if !ok {
		h.setHighlight(nil)
		h.setState(Idle)
		return
	}

	h.setState(Searching)
	var result *models.LookupResult
	if h.matches(ctx, q) {
		result = h.search(trigger.Text)
	}

	// A newer trigger may have arrived while the matcher ran.
	if ctx.Err() != nil {
		return
	}
	h.setState(ResultReady)
	h.setHighlight(result)

	if result == nil || h.acknowledged() {
		return
	}
	h.offerHint()
}

// ProcessEnterKeyPressed handles submission of command with key. It returns
// true when a smart handler ran and the default input handling must be
// suppressed.
func (h *Helper) ProcessEnterKeyPressed(command, key string) bool {
	if h.isClosed() {
		return false
	}

	h.setState(GatedCheck)
	if !h.featureEnabled() || !h.enabledForProject() {
		h.reset()
		return false
	}
	h.logger.Debug("typed shell command to execute", zap.String("command", command))
	h.sched.CancelAll()

	if !h.matchShortcut(key) {
		h.reset()
		return false
	}

	q, ok := h.query(command)
	if !ok {
		h.reset()
		return false
	}
	h.setState(Searching)
	if !h.matches(h.ctx, q) {
		h.reset()
		return false
	}
	h.setState(ResultReady)

	h.recordUsage(command)
	if err := h.guard("execute handler", func() error { return h.matcher.Execute(h.ctx, q) }); err != nil {
		h.logger.Warn("smart command handler failed", zap.String("command", command), zap.Error(err))
	}
	h.clearTypedCommand(command)
	h.setState(Idle)
	return true
}

// OnCommandExecuted signals that the shell ran a command, so the working
// directory and running state may have changed.
func (h *Helper) OnCommandExecuted() {
	h.sched.CancelAll()
	h.reset()
}

// Close cancels pending work. The Helper ignores input afterwards.
func (h *Helper) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.sched.CancelAll()
	h.cancel()
	if h.ownsSched {
		h.sched.Stop()
	}
	h.setState(Idle)
}

func (h *Helper) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Helper) reset() {
	h.cwd.Invalidate(h.session)
	h.busy.Invalidate(h.session)
	h.setState(Idle)
}

// query reads the session facts once and builds the matcher query.
func (h *Helper) query(command string) (models.Query, bool) {
	h.setState(FetchingContext)

	cwd, err := h.cwd.Get(h.session, func() (string, error) {
		var dir string
		err := h.guard("working directory", func() (err error) {
			dir, err = h.provider.WorkingDirectory(h.session)
			return err
		})
		return dir, err
	})
	if err != nil {
		h.logger.Debug("working directory unavailable", zap.Error(err))
		return models.Query{}, false
	}

	busy, err := h.busy.Get(h.session, func() (bool, error) {
		var running bool
		err := h.guard("running commands", func() (err error) {
			running, err = h.provider.HasActiveSubprocess(h.session)
			return err
		})
		return running, err
	})
	if err != nil {
		h.logger.Debug("running state unavailable", zap.Error(err))
		return models.Query{}, false
	}

	return models.Query{
		Session:          h.session,
		Project:          h.project,
		WorkingDirectory: cwd,
		LocalSession:     !busy,
		Command:          command,
	}, true
}

func (h *Helper) matches(ctx context.Context, q models.Query) bool {
	var ok bool
	err := h.guard("match command", func() (err error) {
		ok, err = h.matcher.Matches(ctx, q)
		return err
	})
	if err != nil {
		h.logger.Debug("matcher unavailable", zap.Error(err))
		return false
	}
	return ok
}

// search scans the cursor line case-insensitively. nil means no match.
func (h *Helper) search(pattern string) *models.LookupResult {
	if pattern == "" {
		return nil
	}
	var result models.LookupResult
	err := h.guard("scan buffer", func() (err error) {
		result, err = h.searcher.Scan(h.session, pattern, true)
		return err
	})
	if err != nil {
		h.logger.Debug("buffer scan failed", zap.Error(err))
		return nil
	}
	if !result.Found() {
		return nil
	}
	return &result
}

func (h *Helper) featureEnabled() bool {
	var ok bool
	err := h.guard("feature gate", func() (err error) {
		ok, err = h.gate.Enabled(FeatureID)
		return err
	})
	if err != nil {
		h.logger.Debug("feature gate unavailable", zap.Error(err))
		return false
	}
	return ok
}

func (h *Helper) enabledForProject() bool {
	var ok bool
	err := h.guard("project setting", func() (err error) {
		ok, err = h.settings.GetBool(ProjectSetting(h.project), true)
		return err
	})
	if err != nil {
		h.logger.Debug("project setting unavailable", zap.Error(err))
		return false
	}
	return ok
}

func (h *Helper) acknowledged() bool {
	var ok bool
	err := h.guard("acknowledgements", func() (err error) {
		ok, err = h.acks.IsAcknowledged(GotItKey)
		return err
	})
	if err != nil {
		// No hint while the store is unavailable.
		h.logger.Debug("acknowledgement store unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (h *Helper) offerHint() {
	if h.notifier == nil {
		return
	}
	h.mu.Lock()
	if h.notified {
		h.mu.Unlock()
		return
	}
	h.notified = true
	h.mu.Unlock()

	h.setState(Acknowledging)

	h.notifier.NotifyOnce(Notification{
		Title:        "Smart command execution",
		Body:         fmt.Sprintf("Highlighted commands can be run by smartterm with %s. Press Enter to run them in the shell as usual.", h.shortcut),
		DismissLabel: "Got it",
		Dismiss:      h.dismissHint,
	})
}

func (h *Helper) dismissHint() {
	err := h.guard("acknowledge hint", func() error { return h.acks.Acknowledge(GotItKey) })

	h.mu.Lock()
	if err != nil {
		// Let the hint come back on the next match.
		h.notified = false
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("failed to acknowledge hint", zap.Error(err))
	}
	if h.State() == Acknowledging {
		h.setState(Idle)
	}
}

func (h *Helper) setHighlight(r *models.LookupResult) {
	if h.highlighter == nil {
		return
	}
	h.highlighter.SetFindResult(r)
}

func (h *Helper) recordUsage(command string) {
	if h.usage == nil {
		return
	}
	if err := h.guard("record usage", func() error { return h.usage.RecordSmartCommand(h.project, command) }); err != nil {
		h.logger.Debug("failed to record usage", zap.Error(err))
	}
}

func (h *Helper) clearTypedCommand(command string) {
	n := utf8.RuneCountInString(command)
	if n == 0 {
		return
	}
	err := h.guard("clear typed command", func() error {
		return h.input.WriteControlBytes(bytes.Repeat([]byte{Backspace}, n))
	})
	if err != nil {
		h.logger.Info("cannot clear shell command",
			zap.String("command", command), zap.Error(fmt.Errorf("%w: %w", ErrTransport, err)))
	}
}

// guard runs a collaborator call, turning panics into ErrHostServiceUnavailable.
func (h *Helper) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: panic: %v", op, ErrHostServiceUnavailable, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
