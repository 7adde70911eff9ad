package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/elabgate/internal/util"
)

func newPatientCommand(cc *commandContext) *cobra.Command {
	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Register and list patients",
	}
	patientCmd.AddCommand(newPatientRegisterCommand(cc))
	patientCmd.AddCommand(newPatientListCommand(cc))
	return patientCmd
}

func newPatientRegisterCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "register <name>",
		Short: "Create the patient item in eLabFTW and record it locally",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			return cc.withApp(ctx, func(app *App) error {
				patient, err := app.Relay.RegisterPatient(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %q as eLabFTW item #%d (patient id %d)\n",
					patient.Name, patient.ElabItemID, patient.ID)
				return nil
			})
		},
	}
}

func newPatientListCommand(cc *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			return cc.withApp(ctx, func(app *App) error {
				patients, err := app.Relay.ListPatients(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, patients)
				}
				if len(patients) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No patients registered")
					return nil
				}
				rows := make([][]string, 0, len(patients))
				for _, p := range patients {
					item := "pending"
					if p.Registered() {
						item = "#" + strconv.FormatInt(p.ElabItemID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(p.ID, 10), p.Name, item, util.FormatDateTime(p.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "eLabFTW item", "Registered"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
