// Command elabgated runs the elabgate web server configured from the
// environment only, for container deployments.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/emiliopalmerini/elabgate/internal/cli"
	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, _, err := config.Load(os.Getenv("ELABGATE_CONFIG"))
	if err != nil {
		return err
	}
	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid PORT: %s", p)
		}
		cfg.Server.Bind = fmt.Sprintf(":%d", port)
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

	server, err := web.NewServer(cfg, app.Relay, app.Logger)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}
