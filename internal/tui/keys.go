package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit     key.Binding
	Smart    key.Binding
	Submit   key.Binding
	Dismiss  key.Binding
	History  key.Binding
	Back     key.Binding
	Complete key.Binding
	Up       key.Binding
	Down     key.Binding
	Clear    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

func newKeyMap(shortcut string) keyMap {
	var smart []string
	for _, k := range strings.Split(shortcut, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			smart = append(smart, k)
		}
	}

	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
		Smart:    key.NewBinding(key.WithKeys(smart...), key.WithHelp(strings.Join(smart, "/"), "smart run")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run in shell")),
		Dismiss:  key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "got it")),
		History:  key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "history")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Complete: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "complete")),
		Up:       key.NewBinding(key.WithKeys("up")),
		Down:     key.NewBinding(key.WithKeys("down")),
		Clear:    key.NewBinding(key.WithKeys("ctrl+u")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
	}
}
