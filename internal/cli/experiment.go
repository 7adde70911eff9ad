package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/elabgate/internal/relay"
	"github.com/emiliopalmerini/elabgate/internal/util"
)

func newExperimentCommand(cc *commandContext) *cobra.Command {
	var as string
	experimentCmd := &cobra.Command{
		Use:   "experiment",
		Short: "Create experiments and read their status",
	}
	experimentCmd.PersistentFlags().StringVar(&as, "as", "", "Account acting on eLabFTW")

	experimentCmd.AddCommand(newExperimentCreateCommand(cc, &as))
	experimentCmd.AddCommand(newExperimentStatusCommand(cc, &as))
	experimentCmd.AddCommand(newExperimentPDFCommand(cc, &as))
	experimentCmd.AddCommand(newExperimentListCommand(cc, &as))
	return experimentCmd
}

func newExperimentCreateCommand(cc *commandContext, as *string) *cobra.Command {
	var req relay.CreateExperimentRequest
	var collected string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an experiment for a registered patient",
		Long: `Create an eLabFTW experiment from the template configured for the sample
type, link it to the patient item and record it locally.

Example:
  elabgate experiment create --as alice --reference PROJ-X-001 --patient 1 --sample-type blood`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			if c := strings.TrimSpace(collected); c != "" {
				t, err := time.ParseInLocation("2006-01-02 15:04", c, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --collected-at %q (want YYYY-MM-DD HH:MM)", c)
				}
				req.CollectedAt = t
			}
			return cc.withApp(ctx, func(app *App) error {
				account, err := actor(ctx, app, *as)
				if err != nil {
					return err
				}
				created, err := app.Relay.CreateExperiment(ctx, account, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created experiment #%d for %s (status %s)\n",
					created.ExperimentID, created.Reference, created.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Reference, "reference", "", "Scheduling reference (unique)")
	cmd.Flags().Int64Var(&req.PatientID, "patient", 0, "Local patient id")
	cmd.Flags().StringVar(&req.SampleType, "sample-type", "", "Sample type selecting the template")
	cmd.Flags().StringVar(&req.Title, "title", "", "Experiment title (generated when empty)")
	cmd.Flags().StringVar(&collected, "collected-at", "", "Sample collection time, YYYY-MM-DD HH:MM")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func parseExperimentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid experiment id %q", arg)
	}
	return id, nil
}

func newExperimentStatusCommand(cc *commandContext, as *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <experiment-id>",
		Short: "Show the live eLabFTW status of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			id, err := parseExperimentID(args[0])
			if err != nil {
				return err
			}
			return cc.withApp(ctx, func(app *App) error {
				account, err := actor(ctx, app, *as)
				if err != nil {
					return err
				}
				st, err := app.Relay.GetStatus(ctx, account, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, st)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s: %s\n", st.ExperimentID, st.Title, st.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newExperimentPDFCommand(cc *commandContext, as *string) *cobra.Command {
	var output string
	var changelog bool
	cmd := &cobra.Command{
		Use:   "pdf <experiment-id>",
		Short: "Download the PDF export of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			id, err := parseExperimentID(args[0])
			if err != nil {
				return err
			}
			return cc.withApp(ctx, func(app *App) error {
				account, err := actor(ctx, app, *as)
				if err != nil {
					return err
				}
				pdf, err := app.Relay.ExportPDF(ctx, account, id, changelog)
				if err != nil {
					return err
				}
				target := strings.TrimSpace(output)
				if target == "" {
					target = fmt.Sprintf("experiment-%d.pdf", id)
				}
				if err := os.WriteFile(target, pdf, 0o644); err != nil {
					return fmt.Errorf("write pdf: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", target, len(pdf))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default experiment-<id>.pdf)")
	cmd.Flags().BoolVar(&changelog, "changelog", false, "Include the change log")
	return cmd
}

func newExperimentListCommand(cc *commandContext, as *string) *cobra.Command {
	var limit int
	var withStatus, asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments visible to the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandCtx(cmd)
			return cc.withApp(ctx, func(app *App) error {
				account, err := actor(ctx, app, *as)
				if err != nil {
					return err
				}

				var rows []relay.ExperimentStatus
				if withStatus {
					rows, err = app.Relay.ListExperimentStatuses(ctx, account, limit)
				} else {
					experiments, listErr := app.Relay.ListExperiments(ctx, account, limit)
					err = listErr
					for _, e := range experiments {
						rows = append(rows, relay.ExperimentStatus{Experiment: e})
					}
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No experiments")
					return nil
				}

				headers := []string{"Reference", "eLabFTW", "Sample", "Title", "Created"}
				if withStatus {
					headers = append(headers, "Status")
				}
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					e := r.Experiment
					line := []string{
						e.Reference,
						"#" + strconv.FormatInt(e.ElabExperimentID, 10),
						e.SampleType,
						e.Title,
						util.FormatDateTime(e.CreatedAt),
					}
					if withStatus {
						line = append(line, r.Status)
					}
					table = append(table, line)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, table, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows (-1 for all)")
	cmd.Flags().BoolVar(&withStatus, "status", false, "Fetch live statuses from eLabFTW")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
