// Package cli is the afterword command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/afterword/afterword/internal/auth"
	"github.com/afterword/afterword/internal/client"
	"github.com/afterword/afterword/internal/config"
	"github.com/afterword/afterword/internal/draftcache"
	"github.com/afterword/afterword/internal/kv"
	"github.com/afterword/afterword/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "afterword",
	Short: "Write, revise and resubmit essays against AI feedback",
	Long: `afterword edits essays stored on an AfterWord backend. Each submission
is analysed sentence by sentence; every comment on the latest submission
must be resolved or rejected before the next one.

Start with "afterword login", then "afterword works create" and
"afterword edit <work-id>".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().String("api", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		loginCmd, signupCmd, logoutCmd, whoamiCmd, accountCmd,
		worksCmd, showCmd, versionsCmd, versionCmd, diffCmd,
		feedbackCmd, statsCmd, saveCmd, submitCmd, revertCmd,
		editCmd, serveCmd, versionInfoCmd,
	)
}

// exitError carries a process exit code without printing anything.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

// app is everything a command needs to talk to the backend.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   kv.Store
	auth    *auth.Store
	client  *client.Client
	closers []io.Closer
}

// loadConfig resolves the config file, environment and flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if api, _ := cmd.Flags().GetString("api"); api != "" {
		cfg.APIBaseURL = api
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

// setup resolves configuration and opens local state, logging to stderr.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd, cfg, nil)
}

// newApp opens local state for cfg. logTo receives the logs; nil means
// stderr.
func newApp(cmd *cobra.Command, cfg *config.Config, logTo io.Writer) (*app, error) {
	var err error
	a := &app{cfg: cfg}
	if logTo == nil {
		logTo = cmd.ErrOrStderr()
	}
	a.log = config.NewLogger(logTo, cfg.Log.Level, cfg.Log.Format)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	a.store, err = kv.Open(cfg.Storage.Backend, cfg.StatePath(), cfg.Storage.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("opening local state: %w", err)
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.auth = auth.NewStore(a.store, a.log)
	a.client = client.New(cfg.APIBaseURL,
		client.WithTokenSource(a.auth),
		client.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(a.log),
		client.WithCache(client.NewCache()),
	)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close failed", "err", err)
		}
	}
}

func (a *app) requireAuth() error {
	if !a.auth.SignedIn() {
		return errors.New("not signed in; run \"afterword login\" first")
	}
	return nil
}

// sessionOptions wires the device id, the draft cache and the configured
// timings.
func (a *app) sessionOptions(ctx context.Context) (session.Options, error) {
	device, err := auth.DeviceID(ctx, a.store)
	if err != nil {
		return session.Options{}, fmt.Errorf("device id: %w", err)
	}
	drafts := draftcache.New(a.store)
	if err := drafts.Cleanup(ctx); err != nil {
		a.log.Warn("draft cleanup failed", "err", err)
	}
	return session.Options{
		DeviceID:          device,
		AutoSaveDelay:     a.cfg.Session.AutoSaveDelay,
		LockRetryInterval: a.cfg.Session.LockRetryInterval,
		Drafts:            drafts,
		Logger:            a.log,
	}, nil
}

// openSession loads a work for a one-shot command. The caller closes it.
func (a *app) openSession(ctx context.Context, workID string) (*session.Session, error) {
	opts, err := a.sessionOptions(ctx)
	if err != nil {
		return nil, err
	}
	s := session.New(a.client, workID, opts)
	if err := s.LoadAll(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// withApp runs fn with a signed-in app.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireAuth(); err != nil {
			return err
		}
		return fn(cmd, args, a)
	}
}
