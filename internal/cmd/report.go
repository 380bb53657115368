package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportFull bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the knowledge-graph intelligence report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "report")
		defer span.End()

		app, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		var out string
		if reportFull {
			out, err = app.graph.FullReport(ctx)
		} else {
			out, err = app.graph.StatusSummary(ctx)
		}
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportFull, "full", false, "per-carrier and per-site detail instead of the executive summary")
	rootCmd.AddCommand(reportCmd)
}
