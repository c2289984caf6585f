package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/afterword/afterword/internal/client"
	"github.com/afterword/afterword/internal/diff"
	"github.com/afterword/afterword/internal/model"
)

var worksCmd = &cobra.Command{
	Use:   "works",
	Short: "List and manage works",
	Args:  cobra.NoArgs,
	RunE:  withApp(runWorksList),
}

var worksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List works, most recently updated first",
	Args:  cobra.NoArgs,
	RunE:  withApp(runWorksList),
}

var worksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty work",
	Args:  cobra.NoArgs,
	RunE:  withApp(runWorksCreate),
}

var worksDeleteCmd = &cobra.Command{
	Use:   "delete <work-id>",
	Short: "Delete a work and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runWorksDelete),
}

var worksRenameCmd = &cobra.Command{
	Use:   "rename <work-id> <title>",
	Short: "Set a work's title",
	Args:  cobra.MinimumNArgs(2),
	RunE:  withApp(runWorksRename),
}

var showCmd = &cobra.Command{
	Use:   "show <work-id>",
	Short: "Print a work's current content",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runShow),
}

var versionsCmd = &cobra.Command{
	Use:   "versions <work-id>",
	Short: "List a work's version history",
	Long: `List a work's version history, newest first. Auto-saves are folded
away by the backend and reported as a hidden count.

Examples:
  afterword versions <id>                       # everything
  afterword versions <id> --type submitted      # submissions only
  afterword versions <id> --type draft --parent 3`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runVersions),
}

var versionCmd = &cobra.Command{
	Use:   "version <work-id> <number>",
	Short: "Print one version with its analysis",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runVersion),
}

var diffCmd = &cobra.Command{
	Use:   "diff <work-id> [from] [to]",
	Short: "Compare two versions, or a version with the current text",
	Long: `Print a unified diff between two versions of a work. By default the
latest submission is compared with the current content.`,
	Args: cobra.RangeArgs(1, 3),
	RunE: withApp(runDiff),
}

func init() {
	worksCmd.AddCommand(worksListCmd, worksCreateCmd, worksDeleteCmd, worksRenameCmd)

	versionsCmd.Flags().String("type", client.VersionsAll, "filter: all, submitted, draft")
	versionsCmd.Flags().Int("parent", 0, "with --type draft, only drafts after this submission")
	versionsCmd.Flags().Bool("all", false, "follow cursors until the history is exhausted")

	diffCmd.Flags().IntP("context", "C", 3, "lines of context around changes")
	diffCmd.Flags().Bool("stat", false, "print diff stats only")
}

func runWorksList(cmd *cobra.Command, args []string, a *app) error {
	works, err := a.client.ListWorks(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(works) == 0 {
		fmt.Fprintln(out, "No works yet. Create one with \"afterword works create\".")
		return nil
	}
	for _, w := range works {
		title := w.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(out, "%-36s  %-30s %6d words  %s\n", w.ID, truncateText(title, 30), w.WordCount, w.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runWorksCreate(cmd *cobra.Command, args []string, a *app) error {
	id, err := a.client.CreateWork(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runWorksDelete(cmd *cobra.Command, args []string, a *app) error {
	if err := a.client.DeleteWork(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
	return nil
}

func runWorksRename(cmd *cobra.Command, args []string, a *app) error {
	s, err := a.openSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	title := strings.Join(args[1:], " ")
	if err := s.Rename(cmd.Context(), title); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %q.\n", strings.TrimSpace(title))
	return nil
}

func runShow(cmd *cobra.Command, args []string, a *app) error {
	w, err := a.client.GetWork(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	title := w.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(out, "# %s (v%d, %d words)\n", title, w.CurrentVersion, w.WordCount)
	if w.EssayPrompt != "" {
		fmt.Fprintf(out, "Prompt: %s\n", w.EssayPrompt)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, w.Content)
	if w.Content != "" && !strings.HasSuffix(w.Content, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}

func runVersions(cmd *cobra.Command, args []string, a *app) error {
	typ, _ := cmd.Flags().GetString("type")
	parent, _ := cmd.Flags().GetInt("parent")
	all, _ := cmd.Flags().GetBool("all")

	q := client.VersionQuery{Type: typ, Parent: parent}
	var versions []model.VersionSummary
	hidden := 0
	current := 0
	for {
		page, err := a.client.ListVersions(cmd.Context(), args[0], q)
		if err != nil {
			return err
		}
		versions = append(versions, page.Versions...)
		hidden += page.HiddenCount
		current = page.CurrentVersion
		if !all || page.NextCursor == "" || len(page.Versions) == 0 {
			q.Cursor = page.NextCursor
			break
		}
		q.Cursor = page.NextCursor
	}

	out := cmd.OutOrStdout()
	for _, v := range versions {
		mark := " "
		if v.Number == current {
			mark = "*"
		}
		sub := ""
		if v.Submitted {
			sub = "submitted"
		}
		fmt.Fprintf(out, "%s v%-4d %-10s %-9s %s  %s\n", mark, v.Number, v.ChangeType, sub,
			v.CreatedAt.Local().Format("2006-01-02 15:04"), truncateText(oneLine(v.ContentPreview), 40))
	}
	if hidden > 0 {
		fmt.Fprintf(out, "(%d auto-saves hidden)\n", hidden)
	}
	if !all && q.Cursor != "" {
		fmt.Fprintln(out, "(more history available; use --all)")
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string, a *app) error {
	n, err := parseVersion(args[1])
	if err != nil {
		return err
	}
	v, err := a.client.GetVersion(cmd.Context(), args[0], n)
	if err != nil {
		return err
	}
	printVersion(cmd.OutOrStdout(), v)
	return nil
}

func printVersion(out io.Writer, v *model.VersionDetail) {
	state := "draft"
	if v.Submitted {
		state = "submitted"
	}
	fmt.Fprintf(out, "v%d %s (%s, %s)\n\n", v.Number, state, v.ChangeType, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintln(out, strings.TrimRight(v.Content, "\n"))

	if v.UserReflection != "" {
		fmt.Fprintf(out, "\nReflection: %s\n", v.UserReflection)
	}
	an := v.Analysis
	if an == nil {
		return
	}
	if an.FAOComment != "" {
		fmt.Fprintf(out, "\nOverall: %s\n", an.FAOComment)
	}
	if an.ReflectionComment != "" {
		fmt.Fprintf(out, "On your reflection: %s\n", an.ReflectionComment)
	}
	if len(an.SentenceComments) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%d sentence comment(s):\n", len(an.SentenceComments))
	for _, c := range an.SentenceComments {
		fmt.Fprintf(out, "  %s %s [%s] %s\n", severityIcon(c.Severity), c.ID, c.Severity, commentHeading(c))
		if c.OriginalText != "" {
			fmt.Fprintf(out, "      %q\n", c.OriginalText)
		}
		if c.Suggestion != "" {
			fmt.Fprintf(out, "      → %s\n", c.Suggestion)
		}
	}
}

func runDiff(cmd *cobra.Command, args []string, a *app) error {
	contextLines, _ := cmd.Flags().GetInt("context")
	stat, _ := cmd.Flags().GetBool("stat")
	req := diffRequest{workID: args[0], context: contextLines, stat: stat}
	var err error
	if len(args) > 1 {
		if req.from, err = parseVersion(args[1]); err != nil {
			return err
		}
	}
	if len(args) > 2 {
		if req.to, err = parseVersion(args[2]); err != nil {
			return err
		}
	}
	return writeDiff(cmd.Context(), a, cmd.OutOrStdout(), req)
}

// diffRequest selects two sides of a work. A zero from means the latest
// submission; a zero to means the current content.
type diffRequest struct {
	workID   string
	from, to int
	context  int
	stat     bool
}

func writeDiff(ctx context.Context, a *app, out io.Writer, req diffRequest) error {
	var fromName, fromText string
	if req.from > 0 {
		v, err := a.client.GetVersion(ctx, req.workID, req.from)
		if err != nil {
			return err
		}
		fromName, fromText = versionLabel(req.from), v.Content
	} else {
		base, err := latestSubmission(ctx, a, req.workID)
		if err != nil {
			return err
		}
		if base == nil {
			return fmt.Errorf("work %s has no submission to compare against", req.workID)
		}
		fromName, fromText = versionLabel(base.Number), base.Content
	}

	toName := "current"
	var toText string
	if req.to > 0 {
		v, err := a.client.GetVersion(ctx, req.workID, req.to)
		if err != nil {
			return err
		}
		toName, toText = versionLabel(req.to), v.Content
	} else {
		w, err := a.client.GetWork(ctx, req.workID)
		if err != nil {
			return err
		}
		toText = w.Content
	}

	ds, err := diff.Versions(fromName, toName, fromText, toText, req.context)
	if err != nil {
		return err
	}
	if ds.Empty() {
		fmt.Fprintln(out, "No changes.")
		return nil
	}
	if req.stat {
		printStat(out, ds)
		return nil
	}
	fmt.Fprint(out, ds.Raw)
	return nil
}

// latestSubmission fetches the newest submitted version, or nil.
func latestSubmission(ctx context.Context, a *app, workID string) (*model.VersionDetail, error) {
	page, err := a.client.ListVersions(ctx, workID, client.VersionQuery{Type: client.VersionsSubmitted})
	if err != nil {
		return nil, err
	}
	latest, ok := model.LatestSubmitted(page.Versions)
	if !ok {
		return nil, nil
	}
	return a.client.GetVersion(ctx, workID, latest.Number)
}

func printStat(out io.Writer, ds *diff.DiffSet) {
	_, added, deleted := ds.Stats()
	for _, f := range ds.Files {
		fmt.Fprintf(out, "  %-30s +%-4d -%d\n", f.Name(), f.AddedLines, f.DeletedLines)
	}
	fmt.Fprintf(out, "%d insertion(s)(+), %d deletion(s)(-)\n", added, deleted)
}

func parseVersion(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), "v"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return n, nil
}

func versionLabel(n int) string { return "v" + strconv.Itoa(n) }

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
