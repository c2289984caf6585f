package backendtest

import (
	"fmt"
	"strings"
	"unicode"
)

// SentenceComment is one comment produced by an Analyzer.
type SentenceComment struct {
	ID           string `json:"id"`
	OriginalText string `json:"original_text"`
	IssueType    string `json:"issue_type"`
	Severity     string `json:"severity"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Suggestion   string `json:"suggestion"`
}

// Analyzer critiques the content of submitted version n.
type Analyzer func(n int, content string) (fao string, comments []SentenceComment)

var vagueWords = map[string]bool{
	"good":   true,
	"bad":    true,
	"nice":   true,
	"thing":  true,
	"things": true,
	"stuff":  true,
	"very":   true,
}

// DefaultAnalyzer flags every sentence that leans on a vague word. Long
// sentences are flagged high, the rest medium. Comment ids are stable for a
// given version and sentence index.
func DefaultAnalyzer(n int, content string) (string, []SentenceComment) {
	var comments []SentenceComment
	for i, sentence := range Sentences(content) {
		word := firstVague(sentence)
		if word == "" {
			continue
		}
		severity := "medium"
		if len(strings.Fields(sentence)) > 25 {
			severity = "high"
		}
		comments = append(comments, SentenceComment{
			ID:           fmt.Sprintf("v%d-s%d", n, i),
			OriginalText: sentence,
			IssueType:    "word_choice",
			Severity:     severity,
			Title:        "Vague wording",
			Description:  fmt.Sprintf("%q tells the reader little.", word),
			Suggestion:   fmt.Sprintf("Replace %q with a concrete detail.", word),
		})
	}
	fao := "Clear structure overall."
	if len(comments) > 0 {
		fao = fmt.Sprintf("Focus on specifics: %d sentences rely on vague wording.", len(comments))
	}
	return fao, comments
}

// Sentences splits text at terminal punctuation and line breaks.
func Sentences(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return out
}

func firstVague(sentence string) string {
	for _, w := range strings.FieldsFunc(sentence, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		if vagueWords[strings.ToLower(w)] {
			return strings.ToLower(w)
		}
	}
	return ""
}
