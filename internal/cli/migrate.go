package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/elabgate/internal/adapters/turso"
	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/migrate"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [version]",
		Short: "Run database migrations",
		Long: `Run database migrations on the local registry.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  elabgate migrate      # Run all pending migrations
  elabgate migrate 0    # Roll back every migration`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			db, err := turso.NewDB(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			runner := migrate.NewRunner(db, logger)
			if err := runner.EnsureTable(ctx); err != nil {
				return err
			}
			current, dirty, err := runner.Version(ctx)
			if err != nil {
				return fmt.Errorf("failed to get current version: %w", err)
			}
			if dirty {
				return fmt.Errorf("database is in dirty state at version %d, manual intervention required", current)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Current version: %d\n", current)

			if len(args) == 0 {
				applied, err := runner.Up(ctx)
				if err != nil {
					return err
				}
				if applied == 0 {
					fmt.Fprintln(out, "No pending migrations")
					return nil
				}
				fmt.Fprintf(out, "Applied %d migration(s)\n", applied)
				return nil
			}

			target, err := strconv.Atoi(args[0])
			if err != nil || target < 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			if err := runner.To(ctx, target); err != nil {
				return err
			}
			fmt.Fprintf(out, "Migrated to version %d\n", target)
			return nil
		},
	}
}
