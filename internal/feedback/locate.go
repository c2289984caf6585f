package feedback

import (
	"strings"

	"github.com/afterword/afterword/internal/model"
)

// Span is the byte range of a comment's text in the content.
type Span struct {
	Start, End int
	Line       int // 1-based, 0 when not found
}

// Found reports whether the text was located.
func (s Span) Found() bool { return s.Line > 0 }

// Locate finds each comment's original text in content. Repeated text is
// matched left to right so two comments on identical sentences get
// distinct spans when the sentence occurs twice.
func Locate(content string, comments []model.SentenceComment) []Span {
	spans := make([]Span, len(comments))
	used := make(map[string]int)
	for i, c := range comments {
		needle := strings.TrimSpace(c.OriginalText)
		if needle == "" {
			continue
		}
		from := used[needle]
		idx := strings.Index(content[from:], needle)
		if idx < 0 && from > 0 {
			from = 0
			idx = strings.Index(content, needle)
		}
		if idx < 0 {
			continue
		}
		start := from + idx
		used[needle] = start + len(needle)
		spans[i] = Span{
			Start: start,
			End:   start + len(needle),
			Line:  strings.Count(content[:start], "\n") + 1,
		}
	}
	return spans
}

// Stale returns the comments whose text is absent from content.
func Stale(content string, comments []model.SentenceComment) []model.SentenceComment {
	var stale []model.SentenceComment
	for _, c := range comments {
		needle := strings.TrimSpace(c.OriginalText)
		if needle != "" && !strings.Contains(content, needle) {
			stale = append(stale, c)
		}
	}
	return stale
}

func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fff
}

// CountWords counts whitespace-separated words plus each CJK ideograph,
// matching the backend's word_count.
func CountWords(text string) int {
	cjk := 0
	var rest strings.Builder
	for _, r := range text {
		if isCJK(r) {
			cjk++
			continue
		}
		rest.WriteRune(r)
	}
	return cjk + len(strings.Fields(rest.String()))
}
