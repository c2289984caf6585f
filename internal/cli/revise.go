package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/afterword/afterword/internal/model"
	"github.com/afterword/afterword/internal/session"
	"github.com/afterword/afterword/internal/tui"
)

var saveCmd = &cobra.Command{
	Use:   "save <work-id>",
	Short: "Save new content as a draft version",
	Long: `Replace a work's content and save it as a draft version.

Examples:
  afterword save <id> -f essay.md
  cat essay.md | afterword save <id> -f -
  afterword save <id> --prompt "Describe a turning point"`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runSave),
}

var submitCmd = &cobra.Command{
	Use:   "submit <work-id>",
	Short: "Submit the work for analysis",
	Long: `Submit the current content for analysis. Every sentence comment on the
latest submission must first be resolved or rejected.

Examples:
  afterword submit <id> --resolve v2-s0,v2-s3 --reject v2-s1 --note v2-s1="intentional"
  afterword submit <id> --resolve-all --reflection "Tightened the opening."`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runSubmit),
}

var revertCmd = &cobra.Command{
	Use:   "revert <work-id> <version>",
	Short: "Create a new draft from an earlier version",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runRevert),
}

func init() {
	for _, c := range []*cobra.Command{saveCmd, submitCmd} {
		c.Flags().StringP("file", "f", "", "read new content from a file (- for stdin)")
	}
	saveCmd.Flags().String("prompt", "", "set the essay prompt")
	saveCmd.Flags().Bool("auto", false, "save as an auto-save (no visible version)")

	submitCmd.Flags().StringSlice("resolve", nil, "comment ids to mark resolved")
	submitCmd.Flags().StringSlice("reject", nil, "comment ids to mark rejected")
	submitCmd.Flags().StringArray("note", nil, "attach a note: id=text (repeatable)")
	submitCmd.Flags().Bool("resolve-all", false, "mark every undecided comment resolved")
	submitCmd.Flags().StringP("reflection", "r", "", "reflection on what you changed")
	submitCmd.Flags().BoolP("dry-run", "n", false, "print the checklist without submitting")
}

// readContent returns the --file content, or ok=false when the flag is unset.
func readContent(cmd *cobra.Command) (string, bool, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return "", false, nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", false, fmt.Errorf("reading content: %w", err)
	}
	return string(data), true, nil
}

// readOnly explains a locked work in CLI terms.
func readOnly(s *session.Session) error {
	if s.State().Locked {
		return errors.New("work is being edited on another device; try again shortly")
	}
	return nil
}

func runSave(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	s, err := a.openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.Close()
	if err := readOnly(s); err != nil {
		return err
	}

	content, ok, err := readContent(cmd)
	if err != nil {
		return err
	}
	if ok {
		if err := s.SetContent(content); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("prompt") {
		prompt, _ := cmd.Flags().GetString("prompt")
		if err := s.SetEssayPrompt(prompt); err != nil {
			return err
		}
	}

	auto, _ := cmd.Flags().GetBool("auto")
	if err := s.Save(ctx, auto); err != nil {
		if e := session.MapError(err); e.Kind == session.KindLocked {
			if lerr := readOnly(s); lerr != nil {
				return lerr
			}
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.State().Info)
	return nil
}

func runSubmit(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	s, err := a.openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.Close()
	if err := readOnly(s); err != nil {
		return err
	}

	content, ok, err := readContent(cmd)
	if err != nil {
		return err
	}
	if ok {
		if err := s.SetContent(content); err != nil {
			return err
		}
	}
	if err := applyDecisions(cmd, s); err != nil {
		return err
	}

	st := s.State()
	out := cmd.OutOrStdout()
	list := tui.NewChecklist(st.Baseline, st.Markings)
	fmt.Fprint(out, list.Report())

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return nil
	}

	// The session refuses without a network call while comments are pending.
	reflection, _ := cmd.Flags().GetString("reflection")
	detail, err := s.Submit(ctx, reflection)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSubmitted as v%d.\n", detail.Number)
	if detail.Analysis != nil {
		fmt.Fprintf(out, "%d new sentence comment(s). See \"afterword feedback %s\".\n",
			len(detail.Analysis.SentenceComments), args[0])
	}
	return nil
}

// applyDecisions turns the submit flags into markings.
func applyDecisions(cmd *cobra.Command, s *session.Session) error {
	resolve, _ := cmd.Flags().GetStringSlice("resolve")
	reject, _ := cmd.Flags().GetStringSlice("reject")
	notes, _ := cmd.Flags().GetStringArray("note")
	all, _ := cmd.Flags().GetBool("resolve-all")

	for _, id := range resolve {
		if err := s.MarkSuggestion(strings.TrimSpace(id), model.ActionResolved); err != nil {
			return err
		}
	}
	for _, id := range reject {
		if err := s.MarkSuggestion(strings.TrimSpace(id), model.ActionRejected); err != nil {
			return err
		}
	}
	for _, n := range notes {
		id, text, ok := strings.Cut(n, "=")
		if !ok {
			return fmt.Errorf("invalid --note %q, want id=text", n)
		}
		if err := s.SetSuggestionNote(strings.TrimSpace(id), text); err != nil {
			return err
		}
	}
	if all {
		st := s.State()
		for _, c := range tui.NewChecklist(st.Baseline, st.Markings).Pending() {
			if err := s.MarkSuggestion(c.ID, model.ActionResolved); err != nil {
				return err
			}
		}
	}
	return nil
}

func runRevert(cmd *cobra.Command, args []string, a *app) error {
	target, err := parseVersion(args[1])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := a.openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.Close()
	if err := readOnly(s); err != nil {
		return err
	}

	detail, err := s.Revert(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reverted to v%d as new draft v%d.\n", target, detail.Number)
	return nil
}
