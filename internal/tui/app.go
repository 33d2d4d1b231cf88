// Package tui provides the interactive terminal for smartterm.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/config"
	"github.com/fentz26/smartterm/internal/connectors"
	"github.com/fentz26/smartterm/internal/dispatch"
	"github.com/fentz26/smartterm/internal/handlers"
	"github.com/fentz26/smartterm/internal/models"
	"github.com/fentz26/smartterm/internal/scheduler"
	"github.com/fentz26/smartterm/internal/smartcmd"
	"github.com/fentz26/smartterm/internal/terminal"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warningColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	highlightStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Background(secondaryColor).
			Bold(true)
)

const (
	modeTerminal = "terminal"
	modeHistory  = "history"
)

// Store is the persistence the terminal needs.
type Store interface {
	smartcmd.Settings
	smartcmd.Acknowledgements
	RunLister
}

// Options configures the App.
type Options struct {
	Config   *config.Config
	Store    Store
	Gate     smartcmd.FeatureGate
	Registry *handlers.Registry
	Usage    smartcmd.UsageRecorder
	Shell    connectors.Connector
	Dir      string
	Project  string
	Logger   *zap.Logger

	// Dispatcher overrides delivery of deferred UI work. Defaults to the
	// running program's message queue.
	Dispatcher smartcmd.Dispatcher
}

// App is the main TUI application model.
type App struct {
	cfg      *config.Config
	session  *terminal.Session
	helper   *smartcmd.Helper
	registry *handlers.Registry
	sched    *scheduler.Debouncer
	logger   *zap.Logger

	program atomic.Pointer[tea.Program]

	keys        keyMap
	viewport    viewport.Model
	width       int
	height      int
	mode        string
	highlight   *models.LookupResult
	notice      *smartcmd.Notification
	message     string
	suggestions *Suggestions
	history     *HistoryModel
}

// New creates the terminal model and its smart command helper.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Store == nil || opts.Gate == nil || opts.Registry == nil || opts.Shell == nil {
		return nil, errors.New("tui: store, gate, registry and shell are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:      opts.Config,
		registry: opts.Registry,
		logger:   logger,
		keys:     newKeyMap(opts.Config.Shortcut),
		viewport: viewport.New(80, 20),
		mode:     modeTerminal,
		history:  NewHistoryModel(opts.Store),
	}
	a.suggestions = NewSuggestions(func(prefix string) []models.Handler {
		return a.registry.Suggest(prefix, 8)
	})

	session, err := terminal.New(terminal.Options{
		Dir:      opts.Dir,
		Shell:    opts.Shell,
		MaxLines: opts.Config.MaxLines,
		Logger:   logger,
		OnOutput: func() { a.send(outputMsg{}) },
		OnCommandDone: func(res *connectors.ExecResult, err error) {
			a.send(commandDoneMsg{res: res, err: err})
		},
	})
	if err != nil {
		return nil, err
	}
	a.session = session

	a.sched = scheduler.New(&opts.Config.Debounce, logger)
	a.sched.Start()

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.Func(a.dispatch)
	}
	project := opts.Project
	if project == "" {
		project = session.Dir()
	}
	helper, err := smartcmd.New(smartcmd.Options{
		Session:     session.ID(),
		Project:     project,
		Gate:        opts.Gate,
		Settings:    opts.Store,
		Acks:        opts.Store,
		Context:     session,
		Matcher:     opts.Registry,
		Searcher:    session,
		Input:       session,
		Notifier:    a,
		Highlighter: a,
		Dispatcher:  dispatcher,
		Usage:       opts.Usage,
		Shortcut:    opts.Config.Shortcut,
		Scheduler:   a.sched,
		QuietPeriod: opts.Config.Debounce.QuietPeriod,
		Logger:      logger,
	})
	if err != nil {
		a.sched.Stop()
		session.Close()
		return nil, err
	}
	a.helper = helper

	a.registry.OnRun(func(run models.Run) { a.send(runFinishedMsg{run}) })
	a.refresh()
	return a, nil
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	a.program.Store(p)
	defer a.program.Store(nil)
	_, err := p.Run()
	a.Close()
	return err
}

// Close stops the helper and any running commands.
func (a *App) Close() {
	a.helper.Close()
	a.sched.Stop()
	a.session.Close()
}

// Session returns the shell session behind the view.
func (a *App) Session() *terminal.Session {
	return a.session
}

// send posts a message to the running program. It must not be called from
// inside Update.
func (a *App) send(msg tea.Msg) {
	if p := a.program.Load(); p != nil {
		p.Send(msg)
	}
}

func (a *App) dispatch(fn func()) {
	a.send(dispatchMsg{fn})
}

// SetFindResult stores the highlight for the cursor line.
func (a *App) SetFindResult(r *models.LookupResult) {
	a.highlight = r
	a.refresh()
}

// NotifyOnce shows the hint bar, replacing any previous one.
func (a *App) NotifyOnce(n smartcmd.Notification) {
	a.notice = &n
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-6, 3)
		a.history.SetSize(msg.Width, max(msg.Height-4, 3))
		a.refresh()

	case dispatchMsg:
		msg.fn()

	case outputMsg:
		a.refresh()

	case commandDoneMsg:
		a.helper.OnCommandExecuted()
		if msg.err != nil {
			a.message = "Error: " + msg.err.Error()
		} else if msg.res != nil && msg.res.ExitCode != 0 {
			a.message = fmt.Sprintf("exit status %d", msg.res.ExitCode)
		}
		a.refresh()

	case runFinishedMsg:
		a.session.AppendRun(msg.run)
		a.message = fmt.Sprintf("✓ %s finished (exit %d)", msg.run.Handler, msg.run.ExitCode)
		a.refresh()

	case historyLoadedMsg:
		a.history.SetRuns(msg.runs)

	case errMsg:
		a.message = "Error: " + msg.err.Error()
	}

	if a.mode == modeHistory {
		return a, a.history.Update(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return tea.Quit

	case key.Matches(msg, a.keys.History):
		if a.mode == modeHistory {
			a.mode = modeTerminal
			return nil
		}
		a.mode = modeHistory
		return a.history.Refresh()
	}

	if a.mode == modeHistory {
		if key.Matches(msg, a.keys.Back) {
			a.mode = modeTerminal
			return nil
		}
		return a.history.Update(msg)
	}

	switch {
	case key.Matches(msg, a.keys.Dismiss):
		if a.notice != nil {
			n := a.notice
			a.notice = nil
			if n.Dismiss != nil {
				n.Dismiss()
			}
		}
		return nil

	case key.Matches(msg, a.keys.Back):
		a.suggestions.Hide()
		a.notice = nil
		return nil

	case a.suggestions.IsVisible() && key.Matches(msg, a.keys.Up):
		a.suggestions.Prev()
		return nil

	case a.suggestions.IsVisible() && key.Matches(msg, a.keys.Down):
		a.suggestions.Next()
		return nil

	case key.Matches(msg, a.keys.Complete):
		if selected := a.suggestions.Selected(); selected != nil {
			a.session.SetTyped(selected.Text + " ")
			a.edited()
		}
		return nil

	case key.Matches(msg, a.keys.PageUp), key.Matches(msg, a.keys.PageDown):
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return cmd

	// The shortcut may overlap plain enter, so it is checked first.
	case key.Matches(msg, a.keys.Smart), key.Matches(msg, a.keys.Submit):
		a.submit(msg.String())
		return nil

	case key.Matches(msg, a.keys.Clear):
		a.session.SetTyped("")
		a.edited()
		return nil
	}

	switch msg.Type {
	case tea.KeyBackspace:
		a.session.Backspace()
		a.edited()
	case tea.KeySpace:
		a.session.Type(" ")
		a.edited()
	case tea.KeyRunes:
		if msg.Alt {
			return nil
		}
		a.session.Type(string(msg.Runes))
		a.edited()
	}
	return nil
}

// edited reacts to a change of the typed command.
func (a *App) edited() {
	typed := a.session.TypedCommand()
	a.message = ""
	a.helper.ProcessKeyPressed(typed)
	a.suggestions.Update(typed)
	a.refresh()
}

// submit hands the typed command to the smart helper first and to the shell
// when no handler takes it.
func (a *App) submit(keyName string) {
	typed := a.session.TypedCommand()
	a.suggestions.Hide()
	a.highlight = nil

	if a.helper.ProcessEnterKeyPressed(typed, keyName) {
		a.message = "⚡ " + strings.TrimSpace(typed)
		a.refresh()
		return
	}
	if _, err := a.session.Submit(); err != nil {
		a.message = "Error: " + err.Error()
	}
	a.refresh()
}

func (a *App) refresh() {
	lines := renderScreen(a.session.Screen().Lines(), a.highlight)
	a.viewport.SetContent(strings.Join(lines, "\n"))
	a.viewport.GotoBottom()
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("⚡ SMARTTERM"))
	b.WriteString("  " + lipgloss.NewStyle().Foreground(cyanColor).Render(a.session.Dir()))
	b.WriteString("\n")

	if a.mode == modeHistory {
		b.WriteString(a.history.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc back • / filter • ctrl+c quit"))
		return b.String()
	}

	b.WriteString(a.viewport.View())
	b.WriteString("\n")

	if a.notice != nil {
		text := lipgloss.NewStyle().Bold(true).Render(a.notice.Title) + " " + a.notice.Body +
			"  " + lipgloss.NewStyle().Foreground(warningColor).Render("[ctrl+g] "+a.notice.DismissLabel)
		b.WriteString(noticeStyle.Render(text))
		b.WriteString("\n")
	}

	if s := a.suggestions.Render(a.width); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") || strings.HasPrefix(a.message, "exit") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString(msgStyle.Render(a.message))
		b.WriteString("\n")
	}

	status := fmt.Sprintf("%s • %s smart run • enter shell • ctrl+o history • ctrl+c quit",
		a.helper.State(), a.cfg.Shortcut)
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(status))

	return b.String()
}

type dispatchMsg struct {
	fn func()
}

type outputMsg struct{}

type commandDoneMsg struct {
	res *connectors.ExecResult
	err error
}

type runFinishedMsg struct {
	run models.Run
}

type errMsg struct {
	err error
}
