package diff

import (
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Token is a styled run of essay text.
type Token struct {
	Text   string
	Color  string // hex colour from the style, empty for default
	Bold   bool
	Italic bool
	// Marked is set inside text a sentence comment points at.
	Marked bool
}

// HighlightedLine is one line of essay text split into tokens.
type HighlightedLine struct {
	Tokens []Token
}

// Plain returns the concatenated plain text of all tokens.
func (hl HighlightedLine) Plain() string {
	var b strings.Builder
	for _, t := range hl.Tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// DefaultStyle is the chroma style used for essay text.
const DefaultStyle = "dracula"

// Highlighter tokenises essay text with a chroma lexer and style. A
// Highlighter without a lexer passes text through unstyled.
type Highlighter struct {
	lexer chroma.Lexer
	style *chroma.Style
}

// NewHighlighter looks up language and styleName. Unknown styles use the
// chroma fallback; unknown languages give a plain highlighter.
func NewHighlighter(language, styleName string) *Highlighter {
	h := &Highlighter{style: styles.Get(styleName)}
	if h.style == nil {
		h.style = styles.Fallback
	}
	if l := lexers.Get(language); l != nil {
		h.lexer = chroma.Coalesce(l)
	}
	return h
}

var markdown = sync.OnceValue(func() *Highlighter {
	return NewHighlighter("markdown", DefaultStyle)
})

// HighlightLines tokenises essay lines as markdown so headings, emphasis
// and quotes stand out. Returns one HighlightedLine per input line.
func HighlightLines(lines []string) []HighlightedLine {
	return markdown().Lines(lines)
}

// Lines highlights lines as one document, so constructs spanning lines
// are lexed in context.
func (h *Highlighter) Lines(lines []string) []HighlightedLine {
	if h.lexer == nil {
		return plainLines(lines)
	}
	iterator, err := h.lexer.Tokenise(nil, strings.Join(lines, "\n"))
	if err != nil {
		return plainLines(lines)
	}

	result := make([]HighlightedLine, 0, len(lines))
	var current HighlightedLine
	for _, tok := range iterator.Tokens() {
		for i, part := range strings.Split(tok.Value, "\n") {
			if i > 0 {
				result = append(result, current)
				current = HighlightedLine{}
			}
			if part != "" {
				current.Tokens = append(current.Tokens, h.token(tok.Type, part))
			}
		}
	}
	result = append(result, current)

	if len(result) > len(lines) {
		result = result[:len(lines)]
	}
	for len(result) < len(lines) {
		result = append(result, HighlightedLine{})
	}
	return result
}

func (h *Highlighter) token(tt chroma.TokenType, text string) Token {
	entry := h.style.Get(tt)
	t := Token{
		Text:   text,
		Bold:   entry.Bold == chroma.Yes,
		Italic: entry.Italic == chroma.Yes,
	}
	if entry.Colour.IsSet() {
		t.Color = entry.Colour.String()
	}
	return t
}

func plainLines(lines []string) []HighlightedLine {
	result := make([]HighlightedLine, len(lines))
	for i, line := range lines {
		result[i] = HighlightedLine{Tokens: []Token{{Text: line}}}
	}
	return result
}

type span struct{ start, end int }

// MarkSpans flags every occurrence of the needles in each line, splitting
// tokens at the span edges. Needles are trimmed; empty ones are ignored.
func MarkSpans(lines []HighlightedLine, needles []string) []HighlightedLine {
	out := make([]HighlightedLine, len(lines))
	for i, hl := range lines {
		spans := findSpans(hl.Plain(), needles)
		if len(spans) == 0 {
			out[i] = hl
			continue
		}
		out[i] = splitMarked(hl, spans)
	}
	return out
}

func findSpans(text string, needles []string) []span {
	var spans []span
	for _, n := range needles {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		for off := 0; off < len(text); {
			idx := strings.Index(text[off:], n)
			if idx < 0 {
				break
			}
			start := off + idx
			spans = append(spans, span{start, start + len(n)})
			off = start + len(n)
		}
	}
	return spans
}

func inSpans(spans []span, pos int) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// splitMarked cuts tokens only where markedness changes, which is always
// at a needle boundary and so never inside a rune.
func splitMarked(hl HighlightedLine, spans []span) HighlightedLine {
	var res HighlightedLine
	pos := 0
	for _, tok := range hl.Tokens {
		for start := 0; start < len(tok.Text); {
			m := inSpans(spans, pos+start)
			end := start + 1
			for end < len(tok.Text) && inSpans(spans, pos+end) == m {
				end++
			}
			t := tok
			t.Text = tok.Text[start:end]
			t.Marked = m
			res.Tokens = append(res.Tokens, t)
			start = end
		}
		pos += len(tok.Text)
	}
	return res
}
