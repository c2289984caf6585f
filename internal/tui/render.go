package tui

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/charmbracelet/lipgloss"

	"github.com/afterword/afterword/internal/diff"
	"github.com/afterword/afterword/internal/model"
)

type rowKind int

const (
	rowLine rowKind = iota
	rowHunk
	rowGap
	rowNote // comment annotation under an old-side line
)

// diffRow is one display row of the diff pane.
type diffRow struct {
	kind     rowKind
	op       gitdiff.LineOp
	oldNum   int // 0 when the line is absent on the old side
	newNum   int // 0 when the line is absent on the new side
	text     string
	tokens   []diff.Token
	severity model.Severity
}

// renderDiff lays out every comparison in ds. Old-side lines containing
// commented text are underlined and followed by a note per comment.
func renderDiff(ds *diff.DiffSet, comments []model.SentenceComment) []diffRow {
	needles := make([]string, 0, len(comments))
	for _, c := range comments {
		needles = append(needles, c.OriginalText)
	}

	var rows []diffRow
	for i, f := range ds.Files {
		if i > 0 {
			rows = append(rows, diffRow{kind: rowGap})
		}
		rows = append(rows, fileRows(f, comments, needles)...)
	}
	return rows
}

func fileRows(f *diff.File, comments []model.SentenceComment, needles []string) []diffRow {
	var texts []string
	for _, frag := range f.Fragments {
		for _, line := range frag.Lines {
			texts = append(texts, strings.TrimRight(line.Line, "\r\n"))
		}
	}
	highlighted := diff.MarkSpans(diff.HighlightLines(texts), needles)

	var rows []diffRow
	k := 0
	for i, frag := range f.Fragments {
		if i > 0 {
			rows = append(rows, diffRow{kind: rowGap})
		}
		rows = append(rows, diffRow{kind: rowHunk, text: hunkHeader(frag)})

		oldNum, newNum := int(frag.OldPosition), int(frag.NewPosition)
		for _, line := range frag.Lines {
			r := diffRow{kind: rowLine, op: line.Op, text: texts[k], tokens: highlighted[k].Tokens}
			k++
			switch line.Op {
			case gitdiff.OpAdd:
				r.newNum = newNum
				newNum++
			case gitdiff.OpDelete:
				r.oldNum = oldNum
				oldNum++
			default:
				r.oldNum, r.newNum = oldNum, newNum
				oldNum++
				newNum++
			}
			rows = append(rows, r)
			if line.Op != gitdiff.OpAdd {
				rows = append(rows, noteRows(r.text, comments)...)
			}
		}
	}
	return rows
}

func noteRows(text string, comments []model.SentenceComment) []diffRow {
	var rows []diffRow
	for _, c := range comments {
		needle := strings.TrimSpace(c.OriginalText)
		if needle == "" || !strings.Contains(text, needle) {
			continue
		}
		rows = append(rows, diffRow{
			kind:     rowNote,
			severity: c.Severity,
			text:     fmt.Sprintf("      ▲ [%s] %s", c.Severity, commentTitle(c)),
		})
	}
	return rows
}

// hunkHeader formats a fragment header, omitting counts of one.
func hunkHeader(frag *gitdiff.TextFragment) string {
	side := func(sign string, pos, n int64) string {
		if n == 1 {
			return fmt.Sprintf("%s%d", sign, pos)
		}
		return fmt.Sprintf("%s%d,%d", sign, pos, n)
	}
	return fmt.Sprintf("@@ %s %s @@", side("-", frag.OldPosition, frag.OldLines), side("+", frag.NewPosition, frag.NewLines))
}

func lineNum(n int) string {
	if n == 0 {
		return "    "
	}
	return fmt.Sprintf("%4d", n)
}

// tokenStyle applies chroma colours to context lines only, so that added
// and deleted lines keep their diff colour. Commented text is underlined
// everywhere.
func tokenStyle(base lipgloss.Style, tok diff.Token, context bool) lipgloss.Style {
	s := base
	if context {
		if tok.Color != "" {
			s = s.Foreground(lipgloss.Color(tok.Color))
		}
		s = s.Bold(tok.Bold).Italic(tok.Italic)
	}
	if tok.Marked {
		s = s.Underline(true)
	}
	return s
}

func (r diffRow) opStyle() (prefix string, style lipgloss.Style) {
	switch r.op {
	case gitdiff.OpAdd:
		return "+", addedLineStyle
	case gitdiff.OpDelete:
		return "-", deletedLineStyle
	}
	return " ", contextLineStyle
}

// body renders the prefix and text within max runes. Long lines lose
// their token styling.
func (r diffRow) body(max int) string {
	prefix, style := r.opStyle()
	if len([]rune(prefix+r.text)) > max || len(r.tokens) == 0 {
		return style.Render(truncate(prefix+r.text, max))
	}
	var b strings.Builder
	b.WriteString(style.Render(prefix))
	for _, tok := range r.tokens {
		b.WriteString(tokenStyle(style, tok, r.op == gitdiff.OpContext).Render(tok.Text))
	}
	return b.String()
}

// styleRow renders a row for the unified view.
func styleRow(r diffRow, width int) string {
	switch r.kind {
	case rowNote:
		return severityStyle(r.severity).Render(truncate(r.text, width))
	case rowHunk:
		return hunkHeaderStyle.Width(width).Render(r.text)
	case rowGap:
		return ""
	}
	nums := lineNumberStyle.Render(lineNum(r.oldNum)) + " " + lineNumberStyle.Render(lineNum(r.newNum))
	return nums + " " + r.body(max(1, width-10))
}

// styleRowSplit renders a row for the side-by-side view.
func styleRowSplit(r diffRow, half int) (left, right string) {
	switch r.kind {
	case rowNote:
		return severityStyle(r.severity).Render(truncate(r.text, half)), ""
	case rowHunk:
		return hunkHeaderStyle.Width(half).Render(r.text), ""
	case rowGap:
		return "", ""
	}

	blank := strings.Repeat(" ", half)
	room := max(1, half-5)
	switch r.op {
	case gitdiff.OpDelete:
		return lineNumberStyle.Render(lineNum(r.oldNum)) + " " + r.body(room), blank
	case gitdiff.OpAdd:
		return blank, lineNumberStyle.Render(lineNum(r.newNum)) + " " + r.body(room)
	}
	body := r.body(room)
	return lineNumberStyle.Render(lineNum(r.oldNum)) + " " + body,
		lineNumberStyle.Render(lineNum(r.newNum)) + " " + body
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
