// Package feedback runs checks over a baseline analysis and the current
// essay text.
package feedback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/afterword/afterword/internal/model"
)

// Finding is one observation about a sentence comment.
type Finding struct {
	Pass      string // which check produced this
	CommentID string
	Line      int // 1-based line of the commented text, 0 if not found
	Message   string
	Severity  model.Severity
}

func (f Finding) String() string {
	loc := f.CommentID
	if f.Line > 0 {
		loc = fmt.Sprintf("%s@%d", f.CommentID, f.Line)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Pass, loc, f.Message)
}

// Results holds all findings from running the checks.
type Results struct {
	Findings []Finding
}

// ByComment returns findings grouped by comment id.
func (r *Results) ByComment() map[string][]Finding {
	m := make(map[string][]Finding)
	for _, f := range r.Findings {
		m[f.CommentID] = append(m[f.CommentID], f)
	}
	return m
}

// BySeverity returns findings at or above min.
func (r *Results) BySeverity(min model.Severity) []Finding {
	var result []Finding
	for _, f := range r.Findings {
		if f.Severity >= min {
			result = append(result, f)
		}
	}
	return result
}

// MaxSeverity returns the highest severity among all findings.
func (r *Results) MaxSeverity() model.Severity {
	max := model.SeverityUnknown
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// Summary returns a one-line summary of findings.
func (r *Results) Summary() string {
	if len(r.Findings) == 0 {
		return "No open feedback"
	}

	counts := make(map[model.Severity]int)
	for _, f := range r.Findings {
		counts[f.Severity]++
	}

	var parts []string
	for _, level := range []model.Severity{model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityUnknown} {
		if c := counts[level]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, level))
		}
	}
	return strings.Join(parts, ", ")
}

// Input is what the checks look at.
type Input struct {
	Content  string
	Analysis *model.Analysis
	Markings model.Markings
}

// Pass is a check over the input.
type Pass func(in Input) []Finding

// PassNames maps check names to checks (for the --skip flag).
var PassNames = map[string]Pass{
	"unmarked":  UnmarkedPass,
	"stale":     StalePass,
	"unchanged": UnchangedPass,
}

// Run executes all checks except those in skip. Findings are ordered by
// line, then comment id, then check name.
func Run(in Input, skip []string) *Results {
	skipSet := make(map[string]bool)
	for _, s := range skip {
		skipSet[s] = true
	}

	results := &Results{}
	if in.Analysis == nil {
		return results
	}

	for name, pass := range PassNames {
		if skipSet[name] {
			continue
		}
		results.Findings = append(results.Findings, pass(in)...)
	}

	sort.SliceStable(results.Findings, func(i, j int) bool {
		a, b := results.Findings[i], results.Findings[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.CommentID != b.CommentID {
			return a.CommentID < b.CommentID
		}
		return a.Pass < b.Pass
	})
	return results
}
