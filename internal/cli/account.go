package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/elabgate/internal/util"
)

func newAccountCommand(cc *commandContext) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage local accounts",
	}
	accountCmd.AddCommand(newAccountCreateCommand(cc))
	accountCmd.AddCommand(newAccountListCommand(cc))
	return accountCmd
}

func newAccountCreateCommand(cc *commandContext) *cobra.Command {
	var name, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long: `Create a local account. Roles:
  requester  creates experiments and reads its own statuses and PDFs
  machine    reads statuses and writes results (analyzers, LIS bridges)
  admin      everything, including account management`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			return cc.withApp(ctx, func(app *App) error {
				account, err := app.Relay.CreateAccount(ctx, nil, name, password, role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s account %q (id %d)\n", account.Role, account.Name, account.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Account name")
	cmd.Flags().StringVar(&password, "password", "", "Account password (at least 6 characters)")
	cmd.Flags().StringVar(&role, "role", "requester", "Role: requester, machine or admin")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAccountListCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			return cc.withApp(ctx, func(app *App) error {
				accounts, err := app.Relay.ListAccounts(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(accounts))
				for _, a := range accounts {
					rows = append(rows, []string{
						strconv.FormatInt(a.ID, 10), a.Name, string(a.Role), util.FormatDateTime(a.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Role", "Created"}, rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
}
