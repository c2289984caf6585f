package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/afterword/afterword/internal/config"
	"github.com/afterword/afterword/internal/tui"
)

var editCmd = &cobra.Command{
	Use:   "edit [work-id]",
	Short: "Open a work in the interactive editor",
	Long: `Open the interactive editor for a work. Edits are auto-saved after a
short pause and kept in a local draft until the backend confirms them.

Examples:
  afterword edit <id>          # edit an existing work
  afterword edit --new         # create a work and edit it
  afterword edit <id> --stat   # print changes since the last submission and exit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().Bool("new", false, "create a new work first")
	editCmd.Flags().Bool("stat", false, "print diff stats against the latest submission and exit (non-interactive)")
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The screen belongs to the editor, so logs go to a file.
	logFile, err := config.SetupLogFile(cfg.LogDir(), cfg.Log.MaxFiles)
	if err != nil {
		return err
	}
	defer logFile.Close()
	cfg.Log.Format = "json"

	a, err := newApp(cmd, cfg, logFile)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireAuth(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newWork, _ := cmd.Flags().GetBool("new")
	var workID string
	switch {
	case len(args) == 1 && !newWork:
		workID = args[0]
	case len(args) == 0 && newWork:
		workID, err = a.client.CreateWork(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Created work %s\n", workID)
	default:
		return errors.New("give a work id or --new")
	}

	if stat, _ := cmd.Flags().GetBool("stat"); stat {
		return writeDiff(ctx, a, cmd.OutOrStdout(), diffRequest{workID: workID, stat: true})
	}

	opts, err := a.sessionOptions(ctx)
	if err != nil {
		return err
	}
	a.log.Info("editing", "work", workID, "device", opts.DeviceID)
	return tui.Run(ctx, a.client, workID, opts)
}
