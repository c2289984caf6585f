package cli

import (
	"encoding/json"
	"fmt"
	"html"
	"io"

	"github.com/spf13/cobra"

	"github.com/afterword/afterword/internal/feedback"
	"github.com/afterword/afterword/internal/model"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <work-id>",
	Short: "Report open feedback on the latest submission (non-interactive)",
	Long: `Run the feedback checks against the latest submission's analysis and
the work's current text, and print a report.

Exit codes:
  0 - no high-severity feedback open
  1 - high-severity feedback open`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runFeedback),
}

func init() {
	feedbackCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown, html")
	feedbackCmd.Flags().StringSlice("skip", nil, "checks to skip: unmarked, stale, unchanged")
}

// report is what every output format renders.
type report struct {
	Title    string
	Baseline *model.VersionDetail
	Content  string
	Results  *feedback.Results
}

func runFeedback(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	workID := args[0]

	w, err := a.client.GetWork(ctx, workID)
	if err != nil {
		return err
	}
	base, err := latestSubmission(ctx, a, workID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if base == nil || base.Analysis == nil {
		fmt.Fprintln(out, "No submission with feedback yet.")
		return nil
	}

	skip, _ := cmd.Flags().GetStringSlice("skip")
	results := feedback.Run(feedback.Input{Content: w.Content, Analysis: base.Analysis}, skip)
	r := report{Title: w.Title, Baseline: base, Content: w.Content, Results: results}
	if r.Title == "" {
		r.Title = "Untitled"
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		err = outputJSON(out, r)
	case "markdown":
		err = outputMarkdown(out, r)
	case "html":
		err = outputHTML(out, r)
	case "text":
		err = outputText(out, r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}

	if results.MaxSeverity() >= model.SeverityHigh {
		return exitError{code: 1}
	}
	return nil
}

func outputText(out io.Writer, r report) error {
	comments := r.Baseline.Analysis.SentenceComments
	fmt.Fprintf(out, "%s: feedback on v%d, %d comment(s), %d words now\n", r.Title, r.Baseline.Number, len(comments), feedback.CountWords(r.Content))
	fmt.Fprintf(out, "Open: %s\n\n", r.Results.Summary())

	if len(r.Results.Findings) == 0 {
		fmt.Fprintln(out, "Nothing open.")
		return nil
	}

	byComment := r.Results.ByComment()
	for _, c := range comments {
		findings := byComment[c.ID]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", c.ID, commentHeading(c))
		for _, f := range findings {
			loc := ""
			if f.Line > 0 {
				loc = fmt.Sprintf(" line %d", f.Line)
			}
			fmt.Fprintf(out, "    %s [%s]%s: %s\n", severityIcon(f.Severity), f.Pass, loc, f.Message)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func outputJSON(out io.Writer, r report) error {
	type jsonFinding struct {
		Pass      string `json:"pass"`
		CommentID string `json:"comment_id"`
		Line      int    `json:"line,omitempty"`
		Message   string `json:"message"`
		Severity  string `json:"severity"`
	}

	type jsonOutput struct {
		Work        string        `json:"work"`
		Baseline    int           `json:"baseline"`
		Summary     string        `json:"summary"`
		MaxSeverity string        `json:"max_severity"`
		Total       int           `json:"total"`
		Findings    []jsonFinding `json:"findings"`
	}

	o := jsonOutput{
		Work:        r.Title,
		Baseline:    r.Baseline.Number,
		Summary:     r.Results.Summary(),
		MaxSeverity: r.Results.MaxSeverity().String(),
		Total:       len(r.Results.Findings),
		Findings:    []jsonFinding{},
	}
	for _, f := range r.Results.Findings {
		o.Findings = append(o.Findings, jsonFinding{
			Pass:      f.Pass,
			CommentID: f.CommentID,
			Line:      f.Line,
			Message:   f.Message,
			Severity:  f.Severity.String(),
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

func outputMarkdown(out io.Writer, r report) error {
	fmt.Fprintf(out, "## Feedback: %s\n\n", r.Title)
	fmt.Fprintf(out, "**Baseline:** v%d | **Words:** %d\n\n", r.Baseline.Number, feedback.CountWords(r.Content))
	fmt.Fprintf(out, "**Severity:** %s | **Findings:** %d\n\n", r.Results.MaxSeverity(), len(r.Results.Findings))

	if len(r.Results.Findings) == 0 {
		fmt.Fprintln(out, "Nothing open.")
		return nil
	}

	fmt.Fprintln(out, "| Severity | Check | Comment | Message |")
	fmt.Fprintln(out, "|----------|-------|---------|---------|")
	for _, f := range r.Results.Findings {
		loc := f.CommentID
		if f.Line > 0 {
			loc = fmt.Sprintf("%s (line %d)", f.CommentID, f.Line)
		}
		fmt.Fprintf(out, "| %s | %s | `%s` | %s |\n", f.Severity, f.Pass, loc, f.Message)
	}
	return nil
}

func outputHTML(out io.Writer, r report) error {
	fmt.Fprint(out, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>afterword feedback report</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 40px auto; padding: 0 20px; background: #282a36; color: #f8f8f2; }
  h1 { color: #bd93f9; }
  .summary { background: #343746; padding: 16px; border-radius: 8px; margin-bottom: 24px; }
  .summary span { margin-right: 24px; }
  .sev-high { color: #ff5555; font-weight: bold; }
  .sev-medium { color: #f1fa8c; }
  .sev-low { color: #8be9fd; }
  .sev-unknown { color: #6272a4; }
  table { width: 100%; border-collapse: collapse; }
  th { text-align: left; padding: 8px 12px; background: #44475a; color: #f8f8f2; }
  td { padding: 8px 12px; border-bottom: 1px solid #44475a; }
  tr:hover { background: #343746; }
  .pass { color: #bd93f9; }
  .comment { color: #8be9fd; }
  code { background: #343746; padding: 2px 6px; border-radius: 4px; font-size: 0.9em; }
  .clean { color: #50fa7b; font-size: 1.2em; }
  footer { margin-top: 32px; color: #6272a4; font-size: 0.85em; }
</style>
</head>
<body>
`)
	fmt.Fprintf(out, "<h1>%s</h1>\n", html.EscapeString(r.Title))

	maxSev := r.Results.MaxSeverity()
	fmt.Fprintf(out, `<div class="summary">
  <span>Baseline <strong>v%d</strong></span>
  <span><strong>%d</strong> words</span>
  <span>Severity: <span class="sev-%s">%s</span></span>
  <span>Findings: <strong>%d</strong></span>
</div>
`, r.Baseline.Number, feedback.CountWords(r.Content), maxSev, maxSev, len(r.Results.Findings))

	if len(r.Results.Findings) == 0 {
		fmt.Fprintln(out, `<p class="clean">Nothing open.</p>`)
	} else {
		fmt.Fprintln(out, `<table>
<thead><tr><th>Severity</th><th>Check</th><th>Comment</th><th>Message</th></tr></thead>
<tbody>`)
		for _, f := range r.Results.Findings {
			loc := f.CommentID
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", f.CommentID, f.Line)
			}
			fmt.Fprintf(out, `<tr><td class="sev-%s">%s</td><td class="pass">%s</td><td class="comment"><code>%s</code></td><td>%s</td></tr>
`, f.Severity, f.Severity, f.Pass, html.EscapeString(loc), html.EscapeString(f.Message))
		}
		fmt.Fprintln(out, `</tbody></table>`)
	}

	fmt.Fprintln(out, `<footer>Generated by <strong>afterword</strong></footer>
</body>
</html>`)
	return nil
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityHigh:
		return "!!"
	case model.SeverityMedium:
		return "! "
	case model.SeverityLow:
		return "- "
	default:
		return "  "
	}
}

func commentHeading(c model.SentenceComment) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.IssueType != "":
		return c.IssueType
	}
	return "comment"
}
