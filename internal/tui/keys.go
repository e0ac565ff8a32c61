package tui

import "github.com/charmbracelet/bubbles/key"

type practiceKeys struct {
	Play   key.Binding
	Record key.Binding
	Stop   key.Binding
	Next   key.Binding
	Replay key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultPracticeKeys() practiceKeys {
	return practiceKeys{
		Play: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "listen"),
		),
		Record: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "read aloud"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", "esc"),
			key.WithHelp("s", "stop"),
		),
		Next: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n", "next"),
		),
		Replay: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "play my attempt"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k practiceKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Record, k.Next, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k practiceKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Record, k.Stop},
		{k.Next, k.Replay},
		{k.Help, k.Quit},
	}
}
