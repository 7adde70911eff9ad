package cli

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/elabgate/internal/web"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and JSON API",
		Long: `Start the HTTP server.

Examples:
  elabgate serve                     # Listen on server.bind from the config
  elabgate serve --bind :9090        # Override the listen address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandCtx(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cc.withApp(ctx, func(app *App) error {
				if b := strings.TrimSpace(bind); b != "" {
					app.Config.Server.Bind = b
				}
				server, err := web.NewServer(app.Config, app.Relay, app.Logger)
				if err != nil {
					return err
				}
				return server.Start(ctx)
			})
		},
	}
	cmd.Flags().StringVarP(&bind, "bind", "b", "", "Address to listen on (overrides server.bind)")
	return cmd
}

// commandCtx returns the command's context, or Background when run
// outside Execute.
func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
