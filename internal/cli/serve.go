package cli

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/afterword/afterword/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP and WebSocket bridge",
	Long: `Start a local server exposing editing sessions to other front ends.
Sessions share the signed-in account and this machine's device id.

Endpoints:
  GET    /health                            Health check
  GET    /api/sessions                      Open sessions
  GET    /api/sessions/{id}                 Open a work and return its state
  DELETE /api/sessions/{id}                 Close a session
  GET    /api/sessions/{id}/diff            Diff against a version (?against=baseline)
  POST   /api/sessions/{id}/content         Edit content, prompt or reflection
  POST   /api/sessions/{id}/save            Save (body: {"auto_save": bool})
  POST   /api/sessions/{id}/submit          Submit for analysis
  POST   /api/sessions/{id}/revert          Revert to {"target": n}
  POST   /api/sessions/{id}/markings        Resolve, reject or annotate a comment
  POST   /api/sessions/{id}/versions/{n}    Open a version
  POST   /api/sessions/{id}/load_more       Next page of history
  POST   /api/sessions/{id}/reload          Reload from the backend
  GET    /api/ws?work={id}                  WebSocket for live editing`,
	Args: cobra.NoArgs,
	RunE: withApp(runServe),
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (default from config)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides the config port)")
}

func runServe(cmd *cobra.Command, args []string, a *app) error {
	listen := a.cfg.Bridge.Addr
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		listen = addr
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		host := listen
		if h, _, err := net.SplitHostPort(listen); err == nil {
			host = h
		}
		listen = net.JoinHostPort(host, strconv.Itoa(port))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := a.sessionOptions(ctx)
	if err != nil {
		return err
	}
	manager := api.NewManager(a.client, opts, a.log)
	srv := api.New(listen, manager, a.log)
	return srv.ListenAndServe(ctx)
}
