package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the eLabFTW connection and API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withApp(commandCtx(cmd), func(app *App) error {
				out := cmd.OutOrStdout()
				color := shouldColorize(out)

				fmt.Fprintln(out, renderStatusLine("Config", statusInfo, cc.configPath, color))
				fmt.Fprintln(out, renderStatusLine("eLabFTW", statusInfo, app.Elab.BaseURL(), color))

				ok, err := app.Relay.TestConnection(commandCtx(cmd))
				switch {
				case err != nil:
					fmt.Fprintln(out, renderStatusLine("Connection", statusError, err.Error(), color))
					return fmt.Errorf("connection check failed")
				case !ok:
					fmt.Fprintln(out, renderStatusLine("Connection", statusError, "API key rejected", color))
					return fmt.Errorf("connection check failed")
				}
				fmt.Fprintln(out, renderStatusLine("Connection", statusOK, "reachable, API key accepted", color))
				return nil
			})
		},
	}
}

func newInitCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the patient item type and default template in eLabFTW",
		Long: `Prepare the eLabFTW instance: create the patient item type and the default
experiment template when they are missing. Running it again changes nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withApp(commandCtx(cmd), func(app *App) error {
				env, err := app.Relay.EnsureEnvironment(commandCtx(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				color := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Item type", createdKind(env.CreatedItemType), describe(env.ItemTypeID, env.CreatedItemType), color))
				fmt.Fprintln(out, renderStatusLine("Template", createdKind(env.CreatedTemplate), describe(env.TemplateID, env.CreatedTemplate), color))
				return nil
			})
		},
	}
}

func createdKind(created bool) statusKind {
	if created {
		return statusOK
	}
	return statusInfo
}

func describe(id int64, created bool) string {
	if created {
		return fmt.Sprintf("#%d created", id)
	}
	return fmt.Sprintf("#%d already present", id)
}
