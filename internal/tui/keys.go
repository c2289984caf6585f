package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	// global
	Save      key.Binding
	Submit    key.Binding
	Reload    key.Binding
	Restore   key.Binding
	Discard   key.Binding
	FocusNext key.Binding
	FocusPrev key.Binding
	Quit      key.Binding

	// suggestion and history panes
	Up       key.Binding
	Down     key.Binding
	Resolve  key.Binding
	Reject   key.Binding
	Clear    key.Binding
	Note     key.Binding
	Open     key.Binding
	Revert   key.Binding
	LoadMore key.Binding
	Diff     key.Binding
	Toggle   key.Binding
	NextHunk key.Binding
	PrevHunk key.Binding
	Help     key.Binding
	Close    key.Binding

	// prompts
	Confirm key.Binding
	Cancel  key.Binding
}

var keys = keyMap{
	Save: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "save"),
	),
	Submit: key.NewBinding(
		key.WithKeys("ctrl+g"),
		key.WithHelp("ctrl+g", "submit"),
	),
	Reload: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "reload"),
	),
	Restore: key.NewBinding(
		key.WithKeys("ctrl+y"),
		key.WithHelp("ctrl+y", "restore draft"),
	),
	Discard: key.NewBinding(
		key.WithKeys("ctrl+x"),
		key.WithHelp("ctrl+x", "discard draft"),
	),
	FocusNext: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next pane"),
	),
	FocusPrev: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("S-tab", "prev pane"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Resolve: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resolve"),
	),
	Reject: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "reject"),
	),
	Clear: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "undo mark"),
	),
	Note: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "note"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open version"),
	),
	Revert: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "revert to version"),
	),
	LoadMore: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "more history"),
	),
	Diff: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "diff"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "unified/split"),
	),
	NextHunk: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "next hunk"),
	),
	PrevHunk: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "prev hunk"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Close: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Save, k.Submit, k.FocusNext, k.Diff, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Save, k.Submit, k.Reload, k.Restore, k.Discard, k.FocusNext, k.FocusPrev, k.Quit},
		{k.Up, k.Down, k.Resolve, k.Reject, k.Clear, k.Note},
		{k.Open, k.Revert, k.LoadMore},
		{k.Diff, k.Toggle, k.NextHunk, k.PrevHunk, k.Help, k.Close},
	}
}
