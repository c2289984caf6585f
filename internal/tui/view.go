package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/afterword/afterword/internal/feedback"
)

func versionName(n int) string {
	return "v" + strconv.Itoa(n)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	paneHeight := m.viewHeight + 3
	main := m.renderMain(m.mainWidth, paneHeight)
	sugHeight := paneHeight * 3 / 5
	side := lipgloss.JoinVertical(lipgloss.Left,
		m.renderSuggestions(m.sideWidth, sugHeight),
		m.renderHistory(m.sideWidth, paneHeight-sugHeight),
	)

	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, main, " ", side)}
	if b := m.banner(); b != "" {
		rows = append(rows, bannerStyle.Render(b))
	}
	if m.prompt != promptNone {
		rows = append(rows, m.input.View())
	}
	rows = append(rows, m.renderStatusBar(), helpBarStyle.Render(m.help.View(keys)))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) paneStyleFor(p pane) lipgloss.Style {
	if m.focus == p {
		return paneFocusedStyle
	}
	return paneStyle
}

// banner is a one-line notice for the lock and for a recovered draft.
func (m Model) banner() string {
	switch {
	case m.st.Locked:
		return fmt.Sprintf(" Locked by another device. Read-only; retrying in %ds.", m.st.LockRetryIn)
	case m.st.HasRecovered:
		return " Unsaved local draft found. ctrl+y restore, ctrl+x discard."
	}
	return ""
}

func (m Model) renderMain(width, height int) string {
	title := "Untitled"
	if m.st.Work != nil && m.st.Work.Title != "" {
		title = m.st.Work.Title
	}
	innerHeight := height - 2

	if !m.showDiff {
		header := paneTitleStyle.Render(title)
		body := header + "\n" + m.editor.View()
		return m.paneStyleFor(paneEditor).Width(width).Height(innerHeight).Render(body)
	}

	base := "empty"
	if b := m.diffBase(); b != nil {
		base = versionName(b.Number)
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s: %s → draft", title, base)))
	b.WriteByte('\n')

	if len(m.lines) == 0 {
		b.WriteString(itemDimStyle.Render("No changes"))
		return m.paneStyleFor(paneEditor).Width(width).Height(innerHeight).Render(b.String())
	}

	innerWidth := width - 4
	visible := max(1, innerHeight-2)
	end := min(m.scrollOffset+visible, len(m.lines))
	for i := m.scrollOffset; i < end; i++ {
		if m.splitView {
			left, right := styleRowSplit(m.lines[i], (innerWidth-3)/2)
			b.WriteString(left + " │ " + right)
		} else {
			b.WriteString(styleRow(m.lines[i], innerWidth))
		}
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return m.paneStyleFor(paneEditor).Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderSuggestions(width, height int) string {
	innerWidth := width - 4
	var b strings.Builder

	comments := m.comments()
	title := "Feedback"
	if m.st.Baseline != nil {
		title = fmt.Sprintf("Feedback on %s (%d pending)", versionName(m.st.Baseline.Number), m.st.Unprocessed)
	}
	b.WriteString(paneTitleStyle.Render(title))
	b.WriteByte('\n')

	if len(comments) == 0 {
		b.WriteString(itemDimStyle.Render("No sentence comments."))
		return m.paneStyleFor(paneSuggestions).Width(width).Height(height - 2).Render(b.String())
	}

	spans := feedback.Locate(m.st.Content, comments)
	for i, c := range comments {
		mk := m.st.Markings[c.ID]
		marker := decisionMarker(mk.Action)
		loc := "  --"
		if spans[i].Found() {
			loc = fmt.Sprintf("L%-3d", spans[i].Line)
		}
		line := fmt.Sprintf("%s %s %s", loc, severityStyle(c.Severity).Render(fmt.Sprintf("%-6s", c.Severity)), truncate(commentTitle(c), innerWidth-16))

		style := itemStyle
		if i == m.commentIdx && m.focus == paneSuggestions {
			style = itemSelectedStyle
		}
		b.WriteString(marker + " " + style.Render(line))
		b.WriteByte('\n')

		if i == m.commentIdx {
			detail := lipgloss.NewStyle().Width(innerWidth - 4).PaddingLeft(4)
			if c.Description != "" {
				b.WriteString(detail.Render(c.Description))
				b.WriteByte('\n')
			}
			if c.Suggestion != "" {
				b.WriteString(detail.Foreground(colorGreen).Render("→ " + c.Suggestion))
				b.WriteByte('\n')
			}
			if mk.Note != "" {
				b.WriteString(detail.Foreground(colorDim).Render("note: " + mk.Note))
				b.WriteByte('\n')
			}
		}
	}
	return m.paneStyleFor(paneSuggestions).Width(width).Height(height - 2).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderHistory(width, height int) string {
	var b strings.Builder
	b.WriteString(paneTitleStyle.Render("History"))
	b.WriteByte('\n')

	current := 0
	if m.st.Work != nil {
		current = m.st.Work.CurrentVersion
	}
	selected := 0
	if m.st.Selected != nil {
		selected = m.st.Selected.Number
	}

	for i, v := range m.st.Versions {
		mark := " "
		switch v.Number {
		case selected:
			mark = "▶"
		case current:
			mark = "*"
		}
		line := fmt.Sprintf("%s %-4s %-10s %s", mark, versionName(v.Number), v.ChangeType, v.CreatedAt.Local().Format("Jan 02 15:04"))
		style := itemStyle
		switch {
		case i == m.versionIdx && m.focus == paneHistory:
			style = itemSelectedStyle
		case v.Submitted:
			style = resolvedStyle
		}
		b.WriteString(style.Render(truncate(line, width-4)))
		b.WriteByte('\n')
	}
	if m.st.HiddenCount > 0 {
		b.WriteString(itemDimStyle.Render(fmt.Sprintf("%d auto-saves hidden", m.st.HiddenCount)))
		b.WriteByte('\n')
	}
	if m.st.CanLoadMore {
		b.WriteString(itemDimStyle.Render("m: load more"))
	}
	return m.paneStyleFor(paneHistory).Width(width).Height(height - 2).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderStatusBar() string {
	phase := m.st.Phase.String()
	if m.st.Phase.Busy() {
		phase = m.spinner.View() + " " + phase
	}
	left := " " + phase
	if m.st.Locked {
		left = statusLockedStyle.Render(" LOCKED")
	}
	if m.st.Dirty {
		left += " ●"
	}
	if m.status != "" {
		if m.statusErr {
			left += "  " + statusErrorStyle.Render(m.status)
		} else {
			left += "  " + statusInfoStyle.Render(m.status)
		}
	}

	right := fmt.Sprintf("%d words  %d pending ", feedback.CountWords(m.st.Content), m.st.Unprocessed)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("afterword: keyboard shortcuts"))
	b.WriteString("\n\n")

	for _, group := range keys.FullHelp() {
		for _, kb := range group {
			h := kb.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Width(12).Render(h.Key), h.Desc))
		}
		b.WriteByte('\n')
	}

	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}
