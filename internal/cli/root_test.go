package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterword/afterword/internal/backendtest"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"login", "signup", "logout", "whoami", "account",
		"works", "show", "versions", "version", "diff",
		"feedback", "stats", "save", "submit", "revert",
		"edit", "serve", "version-info",
	} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}
	h := newHarness(t)
	out, err := h.run(t, "", "version-info")
	require.NoError(t, err)
	assert.Equal(t, "afterword dev (commit none, built unknown)\n", out)
}

// harness runs commands against a fake backend with a private data dir.
type harness struct {
	backend *backendtest.Backend
	config  string
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b, srv := backendtest.Start(t)
	dir := t.TempDir()
	cfg := fmt.Sprintf(`api_base_url: %s
data_dir: %s
session:
  auto_save_delay: 1h
log:
  level: error
`, srv.URL, filepath.Join(dir, "data"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &harness{backend: b, config: path, dir: dir}
}

// resetFlags puts every flag back to its default so that commands don't
// see values from an earlier run.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, "", args...)
	require.NoError(t, err, "afterword %s", strings.Join(args, " "))
	return out
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.backend.AddUser("ann@example.com", "ann", "secret1")
	out := h.mustRun(t, "login", "-e", "ann@example.com", "-p", "secret1")
	require.Equal(t, "Signed in as ann.\n", out)
}

func (h *harness) writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestAccountCommands(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "whoami")
	require.ErrorContains(t, err, "not signed in")

	h.login(t)
	assert.Equal(t, "ann <ann@example.com>\n", h.mustRun(t, "whoami"))

	out := h.mustRun(t, "account", "username", "annie")
	assert.Equal(t, "Username changed to annie.\n", out)
	assert.Equal(t, "annie <ann@example.com>\n", h.mustRun(t, "whoami"))

	_, err = h.run(t, "", "account", "username", "a")
	require.Error(t, err)

	out, err = h.run(t, "secret1\nsecret22\nsecret22\n", "account", "password")
	require.NoError(t, err)
	assert.Equal(t, "Password changed.\n", out)

	assert.Equal(t, "Signed out.\n", h.mustRun(t, "logout"))
	_, err = h.run(t, "", "works")
	require.ErrorContains(t, err, "not signed in")

	out = h.mustRun(t, "login", "-e", "ann@example.com", "-p", "secret22")
	assert.Equal(t, "Signed in as annie.\n", out)
}

func TestLoginValidatesBeforeCallingBackend(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "login", "-p", "x")
	require.Error(t, err, "missing email or username")
	_, err = h.run(t, "", "login", "-e", "ann@example.com", "-u", "ann", "-p", "x")
	require.ErrorContains(t, err, "not both")
	_, err = h.run(t, "", "signup", "-e", "bo@example.com", "-u", "bo", "-p", "secret1")
	require.Error(t, err, "username too short")

	assert.Zero(t, h.backend.Requests("POST", "/api/auth/login"))
	assert.Zero(t, h.backend.Requests("POST", "/api/auth/signup"))

	out, err := h.run(t, "secret1\n", "signup", "-e", "bo@example.com", "-u", "bobby")
	require.NoError(t, err)
	assert.Equal(t, "Welcome, bobby.\n", out)
}

func TestLoginByUsername(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("ann@example.com", "ann", "secret1")

	out, err := h.run(t, "ann\nsecret1\n", "login")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as ann.\n", out)

	out = h.mustRun(t, "login", "-u", "ann", "-p", "secret1")
	assert.Equal(t, "Signed in as ann.\n", out)
	assert.Equal(t, "ann <ann@example.com>\n", h.mustRun(t, "whoami"))
}

func TestPasswordPromptFallsBackToLines(t *testing.T) {
	_, ok := terminalFd(strings.NewReader("secret\n"))
	assert.False(t, ok)

	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	_, ok = terminalFd(f)
	assert.False(t, ok, "regular files are not terminals")

	cmd := &cobra.Command{}
	var prompts bytes.Buffer
	cmd.SetIn(strings.NewReader("hunter22\n"))
	cmd.SetErr(&prompts)
	in := newLineReader(cmd)

	got, err := in.secret("from-flag", "Password")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", got)
	got, err = in.secret("", "Password")
	require.NoError(t, err)
	assert.Equal(t, "hunter22", got)
	assert.Equal(t, "Password: ", prompts.String())
}

func TestRevisionCycle(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	id := strings.TrimSpace(h.mustRun(t, "works", "create"))
	require.NotEmpty(t, id)

	out := h.mustRun(t, "save", id, "-f", h.writeFile(t, "v1.md", "My summer was good.\n"), "--prompt", "A season")
	assert.Equal(t, "Saved with new version 1\n", out)

	out = h.mustRun(t, "show", id)
	assert.Contains(t, out, "Prompt: A season")
	assert.Contains(t, out, "My summer was good.")

	// the first submission has nothing to decide
	out = h.mustRun(t, "submit", id)
	assert.Contains(t, out, "No sentence comments on the baseline.")
	assert.Contains(t, out, "Submitted as v2.")
	assert.Contains(t, out, "1 new sentence comment(s).")

	out = h.mustRun(t, "feedback", id, "--format", "json")
	var report struct {
		Baseline    int    `json:"baseline"`
		Summary     string `json:"summary"`
		MaxSeverity string `json:"max_severity"`
		Findings    []struct {
			Pass      string `json:"pass"`
			CommentID string `json:"comment_id"`
			Line      int    `json:"line"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Baseline)
	assert.Equal(t, "1 medium", report.Summary)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "unmarked", report.Findings[0].Pass)
	assert.Equal(t, "v2-s0", report.Findings[0].CommentID)
	assert.Equal(t, 1, report.Findings[0].Line)

	submitPath := "/api/work/" + id + "/submit"
	before := h.backend.Requests("POST", submitPath)
	_, err := h.run(t, "", "submit", id)
	require.EqualError(t, err, "You still have 1 unprocessed sentence comments (total: 1). Mark each as resolved or rejected before submit.")
	assert.Equal(t, before, h.backend.Requests("POST", submitPath))

	h.mustRun(t, "save", id, "-f", h.writeFile(t, "v3.md", "My summer was warm.\n"))
	out = h.mustRun(t, "diff", id)
	assert.Contains(t, out, "-My summer was good.\n")
	assert.Contains(t, out, "+My summer was warm.\n")
	out = h.mustRun(t, "diff", id, "--stat")
	assert.Contains(t, out, "1 insertion(s)(+), 1 deletion(s)(-)")

	out = h.mustRun(t, "submit", id, "--note", "v2-s0=named the weather", "-r", "Added detail.")
	assert.Contains(t, out, "1 resolved, 0 rejected, 0 pending")
	assert.Contains(t, out, "note: named the weather")
	assert.Contains(t, out, "Submitted as v4.")

	out = h.mustRun(t, "version", id, "v4")
	assert.Contains(t, out, "v4 submitted")
	assert.Contains(t, out, "Reflection: Added detail.")

	out = h.mustRun(t, "feedback", id)
	assert.Contains(t, out, "Nothing open.")

	out = h.mustRun(t, "revert", id, "2")
	assert.Equal(t, "Reverted to v2 as new draft v5.\n", out)
	assert.Contains(t, h.mustRun(t, "show", id), "My summer was good.")

	out = h.mustRun(t, "versions", id, "--type", "submitted")
	assert.Contains(t, out, "v4")
	assert.Contains(t, out, "v2")
	assert.NotContains(t, out, "v5")

	h.mustRun(t, "works", "rename", id, "Summer", "Days")
	assert.Contains(t, h.mustRun(t, "works", "list"), "Summer Days")

	out = h.mustRun(t, "stats")
	assert.Equal(t, "Works: 1\nWords: 4\n", out)

	h.mustRun(t, "works", "delete", id)
	assert.Contains(t, h.mustRun(t, "works"), "No works yet.")
}

func TestSubmitResolveAllAndReject(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	id := h.backend.CreateWork("ann@example.com", "Notes", "Good start.\nBad end.")
	require.Equal(t, 2, h.backend.SubmitVersion(id, "Good start.\nBad end."))

	out := h.mustRun(t, "submit", id, "--reject", "v2-s1", "--resolve-all", "--dry-run")
	assert.Contains(t, out, "1 resolved, 1 rejected, 0 pending")
	assert.NotContains(t, out, "Submitted")

	out = h.mustRun(t, "submit", id, "--reject", "v2-s1", "--resolve-all")
	assert.Contains(t, out, "Submitted as v3.")
}

func TestFeedbackExitCodeOnHighSeverity(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	long := "It was a good day and we walked along the shore for hours talking about " +
		"everything that had happened since the winter ended and the town reopened."
	id := h.backend.CreateWork("ann@example.com", "Shore", long)
	h.backend.SubmitVersion(id, long)

	for _, format := range []string{"text", "markdown", "html"} {
		out, err := h.run(t, "", "feedback", id, "--format", format)
		var ee exitError
		require.True(t, errors.As(err, &ee), format)
		assert.Equal(t, 1, ee.code)
		assert.Contains(t, out, "v2-s0", format)
	}

	out, err := h.run(t, "", "feedback", id, "--skip", "unmarked")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing open.")

	_, err = h.run(t, "", "feedback", id, "--format", "yaml")
	require.ErrorContains(t, err, `unknown format "yaml"`)
}

func TestSaveWhileLocked(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	id := h.backend.CreateWork("ann@example.com", "Busy", "Hello.")
	h.backend.HoldLock(id, "other-device")

	_, err := h.run(t, "", "save", id, "-f", h.writeFile(t, "x.md", "Hello again.\n"))
	require.ErrorContains(t, err, "being edited on another device")
	assert.Equal(t, "Hello.", h.backend.Content(id))
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]int{"3": 3, "v3": 3, "V12": 12} {
		got, err := parseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "v", "0", "-1", "two"} {
		_, err := parseVersion(bad)
		assert.Error(t, err, bad)
	}
}
