package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute the knowledge graph from operational history",
	Long: `Drops all derived carrier and site statistics and replays delivery,
contact, and escalation history to recompute them. Safe to run repeatedly;
use it after restoring the operational database or when the graph database
is suspect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "rebuild")
		defer span.End()

		app, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := app.coord.RebuildGraph(ctx); err != nil {
			return err
		}
		fmt.Println("knowledge graph rebuilt")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
