package tui

import (
	"fmt"
	"strings"

	"github.com/afterword/afterword/internal/model"
)

// Checklist pairs the baseline's sentence comments with the decisions
// made so far.
type Checklist struct {
	Comments []model.SentenceComment
	Markings model.Markings
}

// NewChecklist builds a checklist for the baseline analysis. A nil
// baseline gives an empty checklist.
func NewChecklist(baseline *model.VersionDetail, markings model.Markings) Checklist {
	c := Checklist{Markings: markings}
	if baseline != nil && baseline.Analysis != nil {
		c.Comments = baseline.Analysis.SentenceComments
	}
	return c
}

func (c Checklist) filter(match func(model.Marking) bool) []model.SentenceComment {
	var out []model.SentenceComment
	for _, sc := range c.Comments {
		if sc.ID != "" && match(c.Markings[sc.ID]) {
			out = append(out, sc)
		}
	}
	return out
}

// Resolved returns the comments marked resolved.
func (c Checklist) Resolved() []model.SentenceComment {
	return c.filter(func(m model.Marking) bool { return m.Action == model.ActionResolved })
}

// Rejected returns the comments marked rejected.
func (c Checklist) Rejected() []model.SentenceComment {
	return c.filter(func(m model.Marking) bool { return m.Action == model.ActionRejected })
}

// Pending returns comments with no decision.
func (c Checklist) Pending() []model.SentenceComment {
	return c.filter(func(m model.Marking) bool { return !m.Action.Valid() })
}

// Ready reports whether every comment has a decision.
func (c Checklist) Ready() bool {
	return len(c.Pending()) == 0
}

// Report renders the checklist as plain text, the way it is shown before
// a submit.
func (c Checklist) Report() string {
	if len(c.Comments) == 0 {
		return "No sentence comments on the baseline.\n"
	}

	resolved, rejected, pending := c.Resolved(), c.Rejected(), c.Pending()

	var b strings.Builder
	fmt.Fprintf(&b, "%d resolved, %d rejected, %d pending\n", len(resolved), len(rejected), len(pending))

	section := func(title string, list []model.SentenceComment) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, sc := range list {
			fmt.Fprintf(&b, "  - %s %s\n", sc.ID, commentTitle(sc))
			if note := c.Markings[sc.ID].Note; note != "" {
				fmt.Fprintf(&b, "      note: %s\n", note)
			}
		}
	}
	section("Resolved", resolved)
	section("Rejected", rejected)
	section("Pending", pending)
	return b.String()
}

func commentTitle(sc model.SentenceComment) string {
	switch {
	case sc.Title != "":
		return sc.Title
	case sc.IssueType != "":
		return sc.IssueType
	default:
		return fmt.Sprintf("%q", truncate(sc.OriginalText, 40))
	}
}
