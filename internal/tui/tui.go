// Package tui implements the Bubble Tea editor for one work: the essay
// text, the baseline's sentence comments and the version history.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/afterword/afterword/internal/diff"
	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/session"
)

// Controller is the part of a session the editor drives.
// *session.Session implements it.
type Controller interface {
	State() session.State
	LoadAll(ctx context.Context) error
	SetContent(text string) error
	SetReflectionDraft(text string) error
	Save(ctx context.Context, autoSave bool) error
	Submit(ctx context.Context, reflection string) (*model.VersionDetail, error)
	MarkSuggestion(commentID string, action model.SuggestionAction) error
	SetSuggestionNote(commentID, note string) error
	ClearMarking(commentID string) error
	OpenVersion(ctx context.Context, number int) (*model.VersionDetail, error)
	Revert(ctx context.Context, target int) (*model.VersionDetail, error)
	LoadMoreVersions(ctx context.Context) error
	RestoreDraft() (bool, error)
	DiscardDraft(ctx context.Context) error
}

type pane int

const (
	paneEditor pane = iota
	paneSuggestions
	paneHistory
	paneCount
)

type promptKind int

const (
	promptNone promptKind = iota
	promptNote
	promptReflection
)

// stateMsg wakes the model after the session changed.
type stateMsg struct{}

// opDoneMsg reports the end of a network operation.
type opDoneMsg struct {
	op  string
	err error
}

// Model is the top-level Bubble Tea model for the editor.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	changes <-chan struct{}
	st      session.State

	// UI state
	width      int
	height     int
	mainWidth  int
	sideWidth  int
	viewHeight int
	focus      pane

	editor  textarea.Model
	input   textinput.Model
	prompt  promptKind
	noteFor string
	spinner spinner.Model
	help    help.Model

	commentIdx int
	versionIdx int

	// Diff view
	showDiff     bool
	splitView    bool
	lines        []diffRow
	scrollOffset int

	showHelp  bool
	status    string
	statusErr bool
}

// New creates the editor model. changes receives a value whenever the
// controller's state changed.
func New(ctx context.Context, ctrl Controller, changes <-chan struct{}) Model {
	ed := textarea.New()
	ed.Placeholder = "Start writing…"
	ed.Focus()

	in := textinput.New()
	in.Prompt = "> "

	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		changes: changes,
		editor:  ed,
		input:   in,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		help:    help.New(),
	}
	m.sync()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitForChange(m.changes),
		m.run("load", m.ctrl.LoadAll),
	)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateMsg{}
	}
}

// run executes fn off the UI goroutine.
func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// sync pulls the current session state. The editor text is only replaced
// when the session's content moved away from it (load, revert, restore).
func (m *Model) sync() {
	m.st = m.ctrl.State()
	if m.st.Content != m.editor.Value() {
		m.editor.SetValue(m.st.Content)
	}
	if n := len(m.comments()); m.commentIdx >= n {
		m.commentIdx = max(0, n-1)
	}
	if n := len(m.st.Versions); m.versionIdx >= n {
		m.versionIdx = max(0, n-1)
	}
	if m.showDiff {
		m.refreshDiff()
	}
	m.layout()
}

func (m Model) comments() []model.SentenceComment {
	if m.st.Baseline == nil || m.st.Baseline.Analysis == nil {
		return nil
	}
	return m.st.Baseline.Analysis.SentenceComments
}

// diffBase is the version the diff view compares against.
func (m Model) diffBase() *model.VersionDetail {
	if m.st.Selected != nil {
		return m.st.Selected
	}
	return m.st.Baseline
}

func (m *Model) refreshDiff() {
	base := m.diffBase()
	oldName, oldText := "empty", ""
	if base != nil {
		oldName, oldText = versionName(base.Number), base.Content
	}
	ds, err := diff.Versions(oldName, "draft", oldText, m.st.Content, diff.DefaultContext)
	if err != nil {
		m.setStatus(err.Error(), true)
		m.lines = nil
		return
	}
	m.lines = renderDiff(ds, m.comments())
	if m.scrollOffset >= len(m.lines) {
		m.scrollOffset = max(0, len(m.lines)-1)
	}
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

func (m *Model) setFocus(p pane) {
	m.focus = p
	if p == paneEditor && !m.showDiff {
		m.editor.Focus()
	} else {
		m.editor.Blur()
	}
}

// layout sizes the panes for the current window and banners.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.sideWidth = m.width * 2 / 5
	if m.sideWidth < 30 {
		m.sideWidth = 30
	}
	if m.sideWidth > m.width/2 {
		m.sideWidth = m.width / 2
	}
	m.mainWidth = m.width - m.sideWidth - 1

	chrome := 2 // status bar + help bar
	if m.banner() != "" {
		chrome++
	}
	if m.prompt != promptNone {
		chrome++
	}
	m.viewHeight = max(3, m.height-chrome-3) // borders + header

	m.editor.SetWidth(max(10, m.mainWidth-4))
	m.editor.SetHeight(m.viewHeight)
	m.input.Width = max(10, m.width-20)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case stateMsg:
		m.sync()
		return m, waitForChange(m.changes)

	case opDoneMsg:
		m.sync()
		if msg.err != nil {
			m.setStatus(errorText(msg.err), true)
		} else if m.st.Info != "" {
			m.setStatus(m.st.Info, false)
		} else {
			m.setStatus(msg.op+" done", false)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func errorText(err error) string {
	if errors.Is(err, session.ErrReadOnly) || errors.Is(err, session.ErrClosed) {
		return err.Error()
	}
	return session.MapError(err).Message
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}
	if m.prompt != promptNone {
		return m.handlePromptKey(msg)
	}
	if m.showHelp {
		if key.Matches(msg, keys.Help, keys.Cancel, keys.Close) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Save):
		m.setStatus("Saving…", false)
		return m, m.run("save", func(ctx context.Context) error { return m.ctrl.Save(ctx, false) })

	case key.Matches(msg, keys.Submit):
		m.prompt = promptReflection
		m.input.Placeholder = "Reflection on the feedback (optional)"
		m.input.SetValue(m.st.ReflectionDraft)
		m.editor.Blur()
		m.layout()
		cmd := m.input.Focus()
		return m, cmd

	case key.Matches(msg, keys.Reload):
		return m, m.run("reload", m.ctrl.LoadAll)

	case key.Matches(msg, keys.Restore):
		if !m.st.HasRecovered {
			return m, nil
		}
		if _, err := m.ctrl.RestoreDraft(); err != nil {
			m.setStatus(errorText(err), true)
		} else {
			m.setStatus("Restored unsaved draft", false)
		}
		m.sync()
		return m, nil

	case key.Matches(msg, keys.Discard):
		if !m.st.HasRecovered {
			return m, nil
		}
		return m, m.run("discard draft", m.ctrl.DiscardDraft)

	case key.Matches(msg, keys.FocusNext):
		m.setFocus((m.focus + 1) % paneCount)
		return m, nil

	case key.Matches(msg, keys.FocusPrev):
		m.setFocus((m.focus + paneCount - 1) % paneCount)
		return m, nil
	}

	if m.focus == paneEditor && !m.showDiff {
		return m.handleEditorKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, keys.Close):
		return m, tea.Quit
	case key.Matches(msg, keys.Diff):
		m.showDiff = !m.showDiff
		m.scrollOffset = 0
		if m.showDiff {
			m.refreshDiff()
		}
		m.setFocus(m.focus)
		return m, nil
	case key.Matches(msg, keys.Toggle):
		m.splitView = !m.splitView
		return m, nil
	}

	switch m.focus {
	case paneEditor:
		m.handleDiffKey(msg)
		return m, nil
	case paneSuggestions:
		m.handleSuggestionKey(msg)
		return m, nil
	default:
		return m.handleHistoryKey(msg)
	}
}

func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if v := m.editor.Value(); v != m.st.Content {
		if err := m.ctrl.SetContent(v); err != nil {
			m.setStatus(errorText(err), true)
		}
		m.sync()
	}
	return m, cmd
}

func (m *Model) handleDiffKey(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, keys.Down):
		if m.scrollOffset < len(m.lines)-1 {
			m.scrollOffset++
		}
	case key.Matches(msg, keys.Up):
		if m.scrollOffset > 0 {
			m.scrollOffset--
		}
	case key.Matches(msg, keys.NextHunk):
		m.jumpToNextHunk()
	case key.Matches(msg, keys.PrevHunk):
		m.jumpToPrevHunk()
	}
}

func (m *Model) jumpToNextHunk() {
	for i := m.scrollOffset + 1; i < len(m.lines); i++ {
		if m.lines[i].kind == rowHunk {
			m.scrollOffset = i
			return
		}
	}
}

func (m *Model) jumpToPrevHunk() {
	for i := m.scrollOffset - 1; i >= 0; i-- {
		if m.lines[i].kind == rowHunk {
			m.scrollOffset = i
			return
		}
	}
}

func (m *Model) handleSuggestionKey(msg tea.KeyMsg) {
	comments := m.comments()
	if len(comments) == 0 {
		return
	}
	c := comments[m.commentIdx]

	var err error
	switch {
	case key.Matches(msg, keys.Down):
		if m.commentIdx < len(comments)-1 {
			m.commentIdx++
		}
	case key.Matches(msg, keys.Up):
		if m.commentIdx > 0 {
			m.commentIdx--
		}
	case key.Matches(msg, keys.Resolve):
		err = m.ctrl.MarkSuggestion(c.ID, model.ActionResolved)
	case key.Matches(msg, keys.Reject):
		err = m.ctrl.MarkSuggestion(c.ID, model.ActionRejected)
	case key.Matches(msg, keys.Clear):
		err = m.ctrl.ClearMarking(c.ID)
	case key.Matches(msg, keys.Note):
		m.prompt = promptNote
		m.noteFor = c.ID
		m.input.Placeholder = "Note for " + c.ID
		m.input.SetValue(m.st.Markings[c.ID].Note)
		m.input.Focus()
		m.layout()
		return
	default:
		return
	}
	if err != nil {
		m.setStatus(errorText(err), true)
	}
	m.sync()
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	versions := m.st.Versions
	switch {
	case key.Matches(msg, keys.Down):
		if m.versionIdx < len(versions)-1 {
			m.versionIdx++
		}
	case key.Matches(msg, keys.Up):
		if m.versionIdx > 0 {
			m.versionIdx--
		}
	case key.Matches(msg, keys.LoadMore):
		if m.st.CanLoadMore {
			return m, m.run("load history", m.ctrl.LoadMoreVersions)
		}
	case key.Matches(msg, keys.Open):
		if len(versions) > 0 {
			n := versions[m.versionIdx].Number
			return m, m.run("open "+versionName(n), func(ctx context.Context) error {
				_, err := m.ctrl.OpenVersion(ctx, n)
				return err
			})
		}
	case key.Matches(msg, keys.Revert):
		if len(versions) > 0 {
			n := versions[m.versionIdx].Number
			return m, m.run("revert to "+versionName(n), func(ctx context.Context) error {
				_, err := m.ctrl.Revert(ctx, n)
				return err
			})
		}
	}
	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.closePrompt()
		return m, nil

	case key.Matches(msg, keys.Confirm):
		value := m.input.Value()
		kind, noteFor := m.prompt, m.noteFor
		m.closePrompt()
		switch kind {
		case promptNote:
			if err := m.ctrl.SetSuggestionNote(noteFor, value); err != nil {
				m.setStatus(errorText(err), true)
			}
			m.sync()
			return m, nil
		case promptReflection:
			if err := m.ctrl.SetReflectionDraft(value); err != nil {
				m.setStatus(errorText(err), true)
				return m, nil
			}
			m.setStatus("Submitting…", false)
			return m, m.run("submit", func(ctx context.Context) error {
				_, err := m.ctrl.Submit(ctx, value)
				return err
			})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.noteFor = ""
	m.input.Blur()
	m.input.SetValue("")
	m.setFocus(m.focus)
	m.layout()
}

// Run opens workID in the editor and blocks until the user quits.
// Unsaved edits are flushed on the way out, after any auto-save in flight.
func Run(ctx context.Context, api session.WorkAPI, workID string, opts session.Options) error {
	changes := make(chan struct{}, 1)
	prev := opts.OnChange
	opts.OnChange = func(st session.State) {
		if prev != nil {
			prev(st)
		}
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	sess := session.New(api, workID, opts)
	defer sess.Close()

	p := tea.NewProgram(New(ctx, sess, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	if st := sess.State(); st.Dirty && !st.Locked {
		if err := sess.Flush(context.WithoutCancel(ctx)); err != nil && opts.Logger != nil {
			opts.Logger.Warn("final auto-save failed", "work", workID, "err", err)
		}
	}
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}
