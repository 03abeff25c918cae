package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	New        key.Binding
	Speak      key.Binding
	Copy       key.Binding
	Transcript key.Binding
	Export     key.Binding
	Categories key.Binding
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Confirm    key.Binding
	Back       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new story"),
		),
		Speak: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "enable audio"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy subtitle"),
		),
		Transcript: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "transcript"),
		),
		Export: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "open transcript in editor"),
		),
		Categories: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pick categories"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+k"),
			key.WithHelp("↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+j"),
			key.WithHelp("↓", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "tab"),
			key.WithHelp("space", "toggle"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "save and restart"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.New, k.Categories, k.Transcript, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.New, k.Speak, k.Copy},
		{k.Transcript, k.Export, k.Categories},
		{k.Back, k.Help, k.Quit},
	}
}

// pickerKeys is the help shown while picking categories.
type pickerKeys keyMap

func (k pickerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Confirm, k.Back}
}

func (k pickerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
