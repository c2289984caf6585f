package feedback

import (
	"github.com/afterword/afterword/internal/model"
)

// UnmarkedPass reports comments that still need a resolved or rejected
// decision before the next submit.
func UnmarkedPass(in Input) []Finding {
	var findings []Finding
	spans := Locate(in.Content, in.Analysis.SentenceComments)
	for i, c := range in.Analysis.SentenceComments {
		if c.ID == "" || in.Markings[c.ID].Action.Valid() {
			continue
		}
		findings = append(findings, Finding{
			Pass:      "unmarked",
			CommentID: c.ID,
			Line:      spans[i].Line,
			Message:   "needs a decision: " + titleOf(c),
			Severity:  c.Severity,
		})
	}
	return findings
}

// StalePass reports comments whose text no longer occurs in the essay.
// These were most likely addressed by an edit.
func StalePass(in Input) []Finding {
	var findings []Finding
	for _, c := range Stale(in.Content, in.Analysis.SentenceComments) {
		findings = append(findings, Finding{
			Pass:      "stale",
			CommentID: c.ID,
			Message:   "commented text no longer appears; likely addressed",
			Severity:  model.SeverityLow,
		})
	}
	return findings
}

// UnchangedPass reports comments marked resolved whose text is still
// present verbatim.
func UnchangedPass(in Input) []Finding {
	var findings []Finding
	spans := Locate(in.Content, in.Analysis.SentenceComments)
	for i, c := range in.Analysis.SentenceComments {
		if in.Markings[c.ID].Action != model.ActionResolved || !spans[i].Found() {
			continue
		}
		findings = append(findings, Finding{
			Pass:      "unchanged",
			CommentID: c.ID,
			Line:      spans[i].Line,
			Message:   "marked resolved but the text is unchanged",
			Severity:  model.SeverityMedium,
		})
	}
	return findings
}

func titleOf(c model.SentenceComment) string {
	if c.Title != "" {
		return c.Title
	}
	if c.IssueType != "" {
		return c.IssueType
	}
	return c.OriginalText
}
