package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const skipConfigAnnotation = "skipConfigLoad"

// NewRootCommand builds the elabgate command tree.
func NewRootCommand() *cobra.Command {
	var configFlag string
	cc := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "elabgate",
		Short: "Relay between clinical requesters and eLabFTW",
		Long: `elabgate registers patients, creates eLabFTW experiments from templates,
and relays statuses, results and PDF exports for local accounts.

eLabFTW stays the system of record; elabgate keeps a small local registry of
accounts, patients and the experiments it created.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := cc.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newMigrateCommand(cc))
	rootCmd.AddCommand(newCheckCommand(cc))
	rootCmd.AddCommand(newInitCommand(cc))
	rootCmd.AddCommand(newConfigCommand(cc))
	rootCmd.AddCommand(newAccountCommand(cc))
	rootCmd.AddCommand(newPatientCommand(cc))
	rootCmd.AddCommand(newExperimentCommand(cc))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
