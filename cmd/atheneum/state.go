package main

import (
	"github.com/spf13/cobra"

	"github.com/atheneum-app/atheneum/internal/api"
)

var pausedBy string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and control per-source ingestion state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <source-id>",
	Short: "Show a source's resumption cursor and run history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		state, err := svc.Orchestrator.States().Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return api.Output(state)
	},
}

var statePauseCmd = &cobra.Command{
	Use:   "pause <source-id>",
	Short: "Pause a source; subsequent runs skip it, its cursor stays put",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		state, err := svc.Orchestrator.States().Pause(cmd.Context(), args[0], pausedBy)
		if err != nil {
			return err
		}
		return api.Output(state)
	},
}

var stateResumeCmd = &cobra.Command{
	Use:   "resume <source-id>",
	Short: "Resume a paused source from where it left off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := setup()
		if err != nil {
			return err
		}
		defer svc.Close()

		state, err := svc.Orchestrator.States().Resume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return api.Output(state)
	},
}

func init() {
	statePauseCmd.Flags().StringVar(&pausedBy, "by", "admin", "who is pausing the source")

	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(statePauseCmd)
	stateCmd.AddCommand(stateResumeCmd)
}
