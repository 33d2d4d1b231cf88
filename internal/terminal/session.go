// Package terminal models an interactive shell session: the typed command
// line, the screen it renders to and the commands it runs.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/buffer"
	"github.com/fentz26/smartterm/internal/connectors"
	"github.com/fentz26/smartterm/internal/models"
)

var (
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")
	// ErrUnknownSession is returned for a handle that is not this session.
	ErrUnknownSession = errors.New("unknown session")
)

const (
	backspace = 0x08
	del       = 0x7f
)

// Options configures a Session.
type Options struct {
	Dir      string               // starting directory, defaults to the process cwd
	Shell    connectors.Connector // runs submitted command lines
	MaxLines int
	Logger   *zap.Logger

	// OnOutput is called after the screen changes from a background command.
	OnOutput func()
	// OnCommandDone is called from the command goroutine when a background
	// command finishes.
	OnCommandDone func(res *connectors.ExecResult, err error)
}

// Session is one shell session. All methods are safe for concurrent use.
type Session struct {
	id     string
	screen *buffer.Screen
	shell  connectors.Connector
	logger *zap.Logger

	onOutput      func()
	onCommandDone func(res *connectors.ExecResult, err error)

	mu      sync.Mutex
	dir     string
	typed   []rune
	running int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session with a fresh prompt line.
func New(opts Options) (*Session, error) {
	if opts.Shell == nil {
		return nil, errors.New("terminal: shell connector is required")
	}
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:            uuid.New().String(),
		screen:        buffer.NewScreen(opts.MaxLines),
		shell:         opts.Shell,
		logger:        logger,
		onOutput:      opts.OnOutput,
		onCommandDone: opts.OnCommandDone,
		dir:           abs,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.logger = logger.With(zap.String("session", s.id))
	s.mu.Lock()
	s.renderLocked()
	s.mu.Unlock()
	return s, nil
}

// ID returns the session handle.
func (s *Session) ID() string {
	return s.id
}

// Screen returns the session's screen buffer.
func (s *Session) Screen() *buffer.Screen {
	return s.screen
}

// Dir returns the current working directory.
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Prompt returns the prompt shown before the typed command.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptLocked()
}

// TypedCommand returns the command typed on the prompt line so far.
func (s *Session) TypedCommand() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.typed)
}

// Type appends text to the typed command.
func (s *Session) Type(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, r := range text {
		if unicode.IsPrint(r) {
			s.typed = append(s.typed, r)
		}
	}
	s.renderLocked()
}

// SetTyped replaces the typed command.
func (s *Session) SetTyped(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.typed = s.typed[:0]
	for _, r := range text {
		if unicode.IsPrint(r) {
			s.typed = append(s.typed, r)
		}
	}
	s.renderLocked()
}

// Backspace deletes the last typed rune.
func (s *Session) Backspace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eraseLocked()
	s.renderLocked()
}

// WriteControlBytes feeds raw input bytes to the prompt line. Backspace and
// DEL erase one rune each; other control bytes are ignored.
func (s *Session) WriteControlBytes(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, b := range p {
		switch {
		case b == backspace || b == del:
			s.eraseLocked()
		case b >= 0x20 && b < del:
			s.typed = append(s.typed, rune(b))
		}
	}
	s.renderLocked()
	return nil
}

// WorkingDirectory implements the smart command context provider.
func (s *Session) WorkingDirectory(session string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(session); err != nil {
		return "", err
	}
	return s.dir, nil
}

// HasActiveSubprocess reports whether a submitted command is still running.
func (s *Session) HasActiveSubprocess(session string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(session); err != nil {
		return false, err
	}
	return s.running > 0, nil
}

// Scan searches the cursor line of the session screen.
func (s *Session) Scan(session, pattern string, ignoreCase bool) (models.LookupResult, error) {
	s.mu.Lock()
	err := s.checkLocked(session)
	s.mu.Unlock()
	if err != nil {
		return models.LookupResult{Pattern: pattern}, err
	}
	return s.screen.Scan(pattern, ignoreCase), nil
}

// Submit runs the typed command. "cd" is handled in-process; anything else
// runs through the shell connector in the background. It returns the
// submitted line.
func (s *Session) Submit() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	line := strings.TrimSpace(string(s.typed))
	s.typed = nil
	s.screen.NewLine()
	s.renderLocked()

	if line == "" {
		s.mu.Unlock()
		return "", nil
	}
	if dir, ok := parseCd(line); ok {
		err := s.chdirLocked(dir)
		s.mu.Unlock()
		if err != nil {
			s.screen.AppendOutput(err.Error())
		}
		return line, nil
	}

	s.running++
	dir := s.dir
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(line, dir)
	return line, nil
}

// Cancel drops the typed command without running it.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.typed = nil
	s.screen.NewLine()
	s.renderLocked()
}

// AppendRun prints the output of a smart handler run.
func (s *Session) AppendRun(run models.Run) {
	header := fmt.Sprintf("[%s] %s", run.Handler, strings.TrimSpace(run.Command+" "+strings.Join(run.Args, " ")))
	s.screen.AppendOutput(header)
	s.screen.AppendOutput(run.Stdout)
	s.screen.AppendOutput(run.Stderr)
	if run.ExitCode != 0 {
		s.screen.AppendOutput(fmt.Sprintf("exit status %d", run.ExitCode))
	}
}

// Close cancels running commands and waits for them to exit.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Session) run(line, dir string) {
	defer s.wg.Done()

	res, err := s.shell.Execute(s.ctx, connectors.Request{Dir: dir, Command: line})
	if err != nil {
		s.logger.Debug("command failed", zap.String("command", line), zap.Error(err))
		s.screen.AppendOutput(err.Error())
	} else {
		s.screen.AppendOutput(res.Stdout)
		s.screen.AppendOutput(res.Stderr)
	}

	s.mu.Lock()
	s.running--
	s.mu.Unlock()

	if s.onOutput != nil {
		s.onOutput()
	}
	if s.onCommandDone != nil {
		s.onCommandDone(res, err)
	}
}

func (s *Session) checkLocked(session string) error {
	if s.closed {
		return ErrClosed
	}
	if session != s.id {
		return fmt.Errorf("%w: %s", ErrUnknownSession, session)
	}
	return nil
}

func (s *Session) eraseLocked() {
	if n := len(s.typed); n > 0 {
		s.typed = s.typed[:n-1]
	}
}

func (s *Session) renderLocked() {
	s.screen.SetCursorLine(s.promptLocked() + string(s.typed))
}

func (s *Session) promptLocked() string {
	dir := s.dir
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if dir == home {
			dir = "~"
		} else if strings.HasPrefix(dir, home+string(filepath.Separator)) {
			dir = "~" + dir[len(home):]
		}
	}
	return dir + " $ "
}

func (s *Session) chdirLocked(target string) error {
	switch {
	case target == "" || target == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cd: %w", err)
		}
		target = home
	case strings.HasPrefix(target, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cd: %w", err)
		}
		target = filepath.Join(home, target[2:])
	case !filepath.IsAbs(target):
		target = filepath.Join(s.dir, target)
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cd: %s: no such directory", target)
	}
	if !info.IsDir() {
		return fmt.Errorf("cd: %s: not a directory", target)
	}
	s.dir = filepath.Clean(target)
	s.renderLocked()
	return nil
}

func parseCd(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "cd" || len(fields) > 2 {
		return "", false
	}
	if len(fields) == 1 {
		return "", true
	}
	return fields[1], true
}
