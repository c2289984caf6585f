package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals across all works",
	Args:  cobra.NoArgs,
	RunE:  withApp(runStats),
}

func runStats(cmd *cobra.Command, args []string, a *app) error {
	var words, projects int
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		var err error
		words, err = a.client.TotalWordCount(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = a.client.TotalProjectCount(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Works: %d\n", projects)
	fmt.Fprintf(out, "Words: %d\n", words)
	return nil
}
