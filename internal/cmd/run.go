package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runAgentID string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one monitoring cycle for an agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "run")
		defer span.End()

		app, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := app.coord.RunCycle(ctx, runAgentID)
		if err != nil {
			return fmt.Errorf("running cycle: %w", err)
		}

		fmt.Printf("Run %s: %s\n", run.ID, run.Status)
		fmt.Printf("  Sites checked:       %d\n", run.SitesChecked)
		fmt.Printf("  Loads checked:       %d\n", run.LoadsChecked)
		fmt.Printf("  Actions taken:       %d\n", run.ActionsTaken)
		fmt.Printf("  Escalations created: %d\n", run.EscalationsCreated)
		fmt.Printf("  Emails sent:         %d\n", run.EmailsSent)
		if run.Tier2Invoked {
			fmt.Printf("  Judgment calls:      %d (%.4f EUR)\n", run.LLMCalls, run.CostEUR)
		}
		if run.Summary != "" {
			fmt.Printf("  Summary: %s\n", run.Summary)
		}
		if run.Error != "" {
			fmt.Printf("  Error: %s\n", run.Error)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runAgentID, "agent", "", "agent ID to run")
	_ = runCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(runCmd)
}
