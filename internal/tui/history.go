package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/smartterm/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	exitOKStyle   = lipgloss.NewStyle().Foreground(successColor)
	exitFailStyle = lipgloss.NewStyle().Foreground(errorColor)
)

// RunLister reads the run history.
type RunLister interface {
	ListRuns(limit int) ([]models.Run, error)
}

// RunItem implements list.Item for the history list
type RunItem struct {
	Run models.Run
}

func (i RunItem) FilterValue() string { return i.Title() }
func (i RunItem) Title() string {
	return strings.TrimSpace(i.Run.Command + " " + strings.Join(i.Run.Args, " "))
}
func (i RunItem) Description() string {
	exit := exitOKStyle.Render("● ok")
	if i.Run.ExitCode != 0 {
		exit = exitFailStyle.Render(fmt.Sprintf("● exit %d", i.Run.ExitCode))
	}
	return fmt.Sprintf("%s • %s • %s", exit, i.Run.Handler, i.Run.StartedAt.Local().Format("Jan 2 15:04:05"))
}

// HistoryModel lists executed smart handlers, newest first.
type HistoryModel struct {
	lister  RunLister
	list    list.Model
	loading bool
}

// NewHistoryModel creates a new history model
func NewHistoryModel(lister RunLister) *HistoryModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Smart command history"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = listTitleStyle

	return &HistoryModel{
		lister: lister,
		list:   l,
	}
}

// SetSize sets the list dimensions
func (m *HistoryModel) SetSize(w, h int) {
	m.list.SetSize(w, h)
}

// Refresh loads runs from the store
func (m *HistoryModel) Refresh() tea.Cmd {
	if m.lister == nil {
		return nil
	}
	m.loading = true
	return func() tea.Msg {
		runs, err := m.lister.ListRuns(50)
		if err != nil {
			return errMsg{err}
		}
		return historyLoadedMsg{runs}
	}
}

// SetRuns replaces the listed runs
func (m *HistoryModel) SetRuns(runs []models.Run) {
	m.loading = false
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[i] = RunItem{Run: r}
	}
	m.list.SetItems(items)
}

// Selected returns the highlighted run
func (m *HistoryModel) Selected() *models.Run {
	if item, ok := m.list.SelectedItem().(RunItem); ok {
		return &item.Run
	}
	return nil
}

// Update handles messages
func (m *HistoryModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

// View renders the history list
func (m *HistoryModel) View() string {
	if m.loading {
		return "Loading history..."
	}
	return m.list.View()
}

type historyLoadedMsg struct {
	runs []models.Run
}
