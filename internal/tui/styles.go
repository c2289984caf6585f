package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/afterword/afterword/internal/model"
)

// Dracula palette.
var (
	colorRed     = lipgloss.Color("#ff5555")
	colorGreen   = lipgloss.Color("#50fa7b")
	colorYellow  = lipgloss.Color("#f1fa8c")
	colorCyan    = lipgloss.Color("#8be9fd")
	colorPurple  = lipgloss.Color("#bd93f9")
	colorComment = lipgloss.Color("#6272a4")
	colorLine    = lipgloss.Color("#44475a")
	colorBar     = lipgloss.Color("#343746")
	colorFg      = lipgloss.Color("#f8f8f2")
	colorOrange  = lipgloss.Color("#ffb86c")

	colorDim = colorComment
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorLine).
			Padding(0, 1)
	paneFocusedStyle = paneStyle.BorderForeground(colorPurple)
	paneTitleStyle   = fg(colorCyan).Bold(true)

	itemStyle         = fg(colorFg)
	itemSelectedStyle = itemStyle.Background(colorLine).Bold(true)
	itemDimStyle      = fg(colorDim)

	// submitted versions share the resolved colour
	resolvedStyle = fg(colorGreen).Bold(true)

	lineNumberStyle  = fg(colorDim).Width(4).Align(lipgloss.Right)
	addedLineStyle   = fg(colorGreen)
	deletedLineStyle = fg(colorRed)
	contextLineStyle = fg(colorFg)
	hunkHeaderStyle  = fg(colorPurple).Bold(true)
	headerStyle      = fg(colorCyan).Bold(true).Padding(0, 0, 1, 0)

	statusBarStyle    = fg(colorFg).Background(colorBar).Padding(0, 1)
	statusLockedStyle = fg(colorRed).Background(colorBar).Bold(true)
	statusErrorStyle  = fg(colorRed)
	statusInfoStyle   = fg(colorGreen)
	bannerStyle       = fg(colorOrange).Bold(true)

	helpBarStyle = fg(colorDim)
	helpKeyStyle = fg(colorYellow)
)

var severityStyles = map[model.Severity]lipgloss.Style{
	model.SeverityHigh:   fg(colorOrange).Bold(true),
	model.SeverityMedium: fg(colorYellow),
}

func severityStyle(s model.Severity) lipgloss.Style {
	if st, ok := severityStyles[s]; ok {
		return st
	}
	return fg(colorFg)
}

// decisionMarker is the glyph shown beside a comment in the suggestions pane.
func decisionMarker(a model.SuggestionAction) string {
	switch a {
	case model.ActionResolved:
		return resolvedStyle.Render("✓")
	case model.ActionRejected:
		return fg(colorRed).Bold(true).Render("✗")
	}
	return fg(colorYellow).Render("•")
}
