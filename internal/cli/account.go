package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/afterword/afterword/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long: `Sign in with an email address or a username. Missing values are
prompted for; the password is read without echo on a terminal.`,
	Args: cobra.NoArgs,
	RunE:  runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE:  runSignup,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE:  withApp(runWhoami),
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Change account settings",
}

var accountUsernameCmd = &cobra.Command{
	Use:   "username <new-username>",
	Short: "Change the username",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runAccountUsername),
}

var accountPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the password",
	Long: `Change the password. Values not given as flags are prompted for in
order (current, new, confirmation), without echo on a terminal. When stdin is
not a terminal they are read one per line.`,
	Args: cobra.NoArgs,
	RunE: withApp(runAccountPassword),
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringP("email", "e", "", "account email")
		c.Flags().StringP("username", "u", "", "username")
		c.Flags().StringP("password", "p", "", "password for scripts; omit to be prompted")
	}

	accountPasswordCmd.Flags().String("old", "", "current password (scripts only)")
	accountPasswordCmd.Flags().String("new", "", "new password (scripts only)")
	accountPasswordCmd.Flags().String("confirm", "", "new password again (scripts only)")
	accountCmd.AddCommand(accountUsernameCmd, accountPasswordCmd)
}

// lineReader hands out stdin lines for values missing from flags.
type lineReader struct {
	cmd *cobra.Command
	in  io.Reader
	sc  *bufio.Scanner
}

func newLineReader(cmd *cobra.Command) *lineReader {
	in := cmd.InOrStdin()
	return &lineReader{cmd: cmd, in: in, sc: bufio.NewScanner(in)}
}

func (r *lineReader) value(v, prompt string) string {
	if v != "" {
		return v
	}
	fmt.Fprintf(r.cmd.ErrOrStderr(), "%s: ", prompt)
	if r.sc.Scan() {
		return strings.TrimRight(r.sc.Text(), "\r")
	}
	return ""
}

// secret is value for passwords: on a terminal the input is not echoed.
func (r *lineReader) secret(v, prompt string) (string, error) {
	if v != "" {
		return v, nil
	}
	fd, ok := terminalFd(r.in)
	if !ok {
		return r.value("", prompt), nil
	}
	stderr := r.cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "%s: ", prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return string(b), nil
}

// terminalFd returns the descriptor of r when it is an interactive terminal.
func terminalFd(r io.Reader) (uintptr, bool) {
	f, ok := r.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return 0, false
	}
	return f.Fd(), true
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	email, _ := cmd.Flags().GetString("email")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if email != "" && username != "" {
		return errors.New("use --email or --username, not both")
	}
	in := newLineReader(cmd)
	id := strings.TrimSpace(in.value(email+username, "Email or username"))
	pw, err := in.secret(password, "Password")
	if err != nil {
		return err
	}
	form := auth.LoginInput{Identifier: id, Password: pw}
	if err := form.Validate(); err != nil {
		return err
	}

	res, err := a.client.Login(cmd.Context(), form.Identifier, form.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := a.auth.Set(res.Token, res.User); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", res.User.Username)
	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	email, _ := cmd.Flags().GetString("email")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	in := newLineReader(cmd)
	form := auth.SignupInput{
		Email:    strings.TrimSpace(in.value(email, "Email")),
		Username: strings.TrimSpace(in.value(username, "Username")),
	}
	if form.Password, err = in.secret(password, "Password"); err != nil {
		return err
	}
	if err := form.Validate(); err != nil {
		return err
	}

	res, err := a.client.Signup(cmd.Context(), form.Email, form.Username, form.Password)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	if err := a.auth.Set(res.Token, res.User); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s.\n", res.User.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.auth.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string, a *app) error {
	u, err := a.client.Me(cmd.Context())
	if err != nil {
		return err
	}
	if err := a.auth.SetUser(*u); err != nil {
		a.log.Warn("caching user failed", "err", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", u.Username, u.Email)
	return nil
}

func runAccountUsername(cmd *cobra.Command, args []string, a *app) error {
	name := strings.TrimSpace(args[0])
	if err := auth.ValidateUsername(name); err != nil {
		return fmt.Errorf("username: %w", err)
	}
	if err := a.client.ChangeUsername(cmd.Context(), name); err != nil {
		return err
	}
	if u, ok := a.auth.User(); ok {
		u.Username = name
		if err := a.auth.SetUser(u); err != nil {
			a.log.Warn("caching user failed", "err", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Username changed to %s.\n", name)
	return nil
}

func runAccountPassword(cmd *cobra.Command, args []string, a *app) error {
	oldPw, _ := cmd.Flags().GetString("old")
	newPw, _ := cmd.Flags().GetString("new")
	confirm, _ := cmd.Flags().GetString("confirm")
	in := newLineReader(cmd)
	var form auth.ChangePasswordInput
	var err error
	if form.Old, err = in.secret(oldPw, "Current password"); err != nil {
		return err
	}
	if form.New, err = in.secret(newPw, "New password"); err != nil {
		return err
	}
	if form.Confirm, err = in.secret(confirm, "Confirm new password"); err != nil {
		return err
	}
	if err := form.Validate(); err != nil {
		return err
	}
	if err := a.client.ChangePassword(cmd.Context(), form.Old, form.New, form.Confirm); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
	return nil
}
