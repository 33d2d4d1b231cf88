// Package handlers decides which typed commands smartterm runs itself and
// executes them through a connector.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/connectors"
	"github.com/fentz26/smartterm/internal/models"
)

// ErrNoHandler is returned by Execute when nothing matches the query.
var ErrNoHandler = errors.New("no handler for command")

// RunStore persists handler executions.
type RunStore interface {
	CreateRun(handler, command string, args []string, dir string) (*models.Run, error)
	UpdateRun(id string, exitCode int, stdout, stderr string) error
}

// DefaultHandlers are registered when the configuration names none.
func DefaultHandlers() []models.Handler {
	return []models.Handler{
		{
			Name:        "git-status",
			Description: "Show working tree status",
			Command:     "git status",
			LocalOnly:   true,
			Run:         []string{"git", "status"},
		},
		{
			Name:        "git-diff",
			Description: "Show unstaged changes",
			Command:     "git diff",
			LocalOnly:   true,
			Run:         []string{"git", "diff"},
		},
		{
			Name:        "go-test",
			Description: "Run Go tests of the project",
			Command:     "go test",
			LocalOnly:   true,
			ProjectOnly: true,
			Run:         []string{"go", "test"},
		},
	}
}

type rule struct {
	handler models.Handler
	re      *regexp.Regexp
}

// Registry holds handler rules. It satisfies the smart command Matcher.
type Registry struct {
	mu    sync.RWMutex
	rules []rule

	conn    connectors.Connector
	runs    RunStore
	timeout time.Duration
	logger  *zap.Logger

	obsMu     sync.Mutex
	observers []func(models.Run)

	wg sync.WaitGroup
}

// Options configures a Registry.
type Options struct {
	Connector connectors.Connector
	Runs      RunStore // optional
	Timeout   time.Duration
	Logger    *zap.Logger
}

// New compiles handlers into a Registry.
func New(handlers []models.Handler, opts Options) (*Registry, error) {
	if opts.Connector == nil {
		return nil, errors.New("handlers: connector is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	r := &Registry{
		conn:    opts.Connector,
		runs:    opts.Runs,
		timeout: timeout,
		logger:  logger,
	}
	if err := r.Replace(handlers); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the rule set atomically. On error the old rules are kept.
func (r *Registry) Replace(handlers []models.Handler) error {
	rules, err := compile(handlers)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
	return nil
}

// Handlers returns the registered handlers in match order.
func (r *Registry) Handlers() []models.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Handler, len(r.rules))
	for i, ru := range r.rules {
		out[i] = ru.handler
	}
	return out
}

// OnRun registers fn to receive every finished run.
func (r *Registry) OnRun(fn func(models.Run)) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, fn)
}

// Find returns the first handler accepting q.
func (r *Registry) Find(q models.Query) (models.Handler, bool) {
	command := strings.TrimSpace(q.Command)
	if command == "" {
		return models.Handler{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ru := range r.rules {
		if ru.accepts(q, command) {
			return ru.handler, true
		}
	}
	return models.Handler{}, false
}

// Suggest returns handlers whose command starts with the typed prefix.
func (r *Registry) Suggest(prefix string, limit int) []models.Handler {
	prefix = strings.ToLower(strings.TrimLeft(prefix, " "))
	if prefix == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Handler
	for _, ru := range r.rules {
		cmd := strings.ToLower(ru.handler.Command)
		if cmd == "" || !strings.HasPrefix(cmd, prefix) {
			continue
		}
		out = append(out, ru.handler)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Matches reports whether a handler exists for q.
func (r *Registry) Matches(ctx context.Context, q models.Query) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := r.Find(q)
	return ok, nil
}

// Execute starts the handler for q in the background and returns once it
// has been resolved. Results reach OnRun observers.
func (r *Registry) Execute(ctx context.Context, q models.Query) error {
	h, ok := r.Find(q)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, q.Command)
	}
	if len(Argv(h, q.Command)) == 0 {
		return fmt.Errorf("handler %s: empty command", h.Name)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Run(ctx, q); err != nil {
			r.logger.Warn("smart handler failed", zap.String("handler", h.Name), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until background runs started by Execute have finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Run executes the handler for q in the query's working directory and
// returns the recorded run.
func (r *Registry) Run(ctx context.Context, q models.Query) (*models.Run, error) {
	h, ok := r.Find(q)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, q.Command)
	}

	argv := Argv(h, q.Command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("handler %s: empty command", h.Name)
	}
	req := connectors.Request{Dir: q.WorkingDirectory, Command: argv[0], Args: argv[1:]}

	var run *models.Run
	if r.runs != nil {
		var err error
		run, err = r.runs.CreateRun(h.Name, req.Command, req.Args, req.Dir)
		if err != nil {
			r.logger.Warn("failed to record run", zap.String("handler", h.Name), zap.Error(err))
		}
	}
	if run == nil {
		run = &models.Run{Handler: h.Name, Command: req.Command, Args: req.Args, Dir: req.Dir, StartedAt: time.Now().UTC()}
	}

	r.logger.Info("running smart handler",
		zap.String("handler", h.Name),
		zap.String("command", req.String()),
		zap.String("dir", req.Dir))

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.conn.Execute(execCtx, req)
	if err != nil {
		run.ExitCode = -1
		run.Stderr = err.Error()
	} else {
		run.ExitCode = result.ExitCode
		run.Stdout = result.Stdout
		run.Stderr = result.Stderr
	}
	run.EndedAt = time.Now().UTC()

	if r.runs != nil && run.ID != "" {
		if uerr := r.runs.UpdateRun(run.ID, run.ExitCode, run.Stdout, run.Stderr); uerr != nil {
			r.logger.Warn("failed to update run", zap.String("run_id", run.ID), zap.Error(uerr))
		}
	}
	r.notify(*run)

	if err != nil {
		return run, fmt.Errorf("handler %s: %w", h.Name, err)
	}
	return run, nil
}

func (r *Registry) notify(run models.Run) {
	r.obsMu.Lock()
	observers := append([]func(models.Run){}, r.observers...)
	r.obsMu.Unlock()
	for _, fn := range observers {
		fn(run)
	}
}

// Argv builds the process arguments for command. Words typed after the
// handler's command prefix are appended to its Run line.
func Argv(h models.Handler, command string) []string {
	fields := strings.Fields(command)
	if len(h.Run) == 0 {
		return fields
	}
	argv := append([]string{}, h.Run...)
	if h.Command == "" {
		return argv
	}
	prefix := strings.Fields(h.Command)
	if len(fields) > len(prefix) && equalFold(fields[:len(prefix)], prefix) {
		argv = append(argv, fields[len(prefix):]...)
	}
	return argv
}

func compile(handlers []models.Handler) ([]rule, error) {
	rules := make([]rule, 0, len(handlers))
	seen := make(map[string]bool, len(handlers))
	for _, h := range handlers {
		if h.Name == "" {
			return nil, errors.New("handler name is required")
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("duplicate handler %q", h.Name)
		}
		seen[h.Name] = true

		if strings.TrimSpace(h.Command) == "" && h.Pattern == "" {
			return nil, fmt.Errorf("handler %s: command or pattern is required", h.Name)
		}
		ru := rule{handler: h}
		if h.Pattern != "" {
			re, err := regexp.Compile(h.Pattern)
			if err != nil {
				return nil, fmt.Errorf("handler %s: invalid pattern: %w", h.Name, err)
			}
			ru.re = re
		}
		rules = append(rules, ru)
	}
	return rules, nil
}

func (ru rule) accepts(q models.Query, command string) bool {
	h := ru.handler
	if h.LocalOnly && !q.LocalSession {
		return false
	}
	if h.ProjectOnly && !within(q.WorkingDirectory, q.Project) {
		return false
	}
	if h.Command != "" && hasCommandPrefix(command, h.Command) {
		return true
	}
	return ru.re != nil && ru.re.MatchString(command)
}

// hasCommandPrefix matches whole words, so "git status" accepts
// "git status -s" but not "git statusx".
func hasCommandPrefix(command, prefix string) bool {
	fields := strings.Fields(command)
	want := strings.Fields(prefix)
	if len(fields) < len(want) {
		return false
	}
	return equalFold(fields[:len(want)], want)
}

func equalFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// within reports whether dir is project or below it. An unknown directory is
// never inside a project.
func within(dir, project string) bool {
	if dir == "" || project == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(project), filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Validate checks that handlers would compile into a Registry.
func Validate(handlers []models.Handler) error {
	_, err := compile(handlers)
	return err
}
