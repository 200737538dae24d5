package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
	"github.com/Laraewellen/metas-judiciarias-etl/report"
)

func newChartCmd(a *app) *cobra.Command {
	var out, goal string
	c := &cobra.Command{
		Use:   "chart <summary.csv>",
		Short: "Draw a bar chart of one goal from a summary table",
		Long: `Reads a summary written by "metas run" and draws the chosen goal per court,
highest first. Courts where the goal is NA are left out. The image format
follows the extension of the output file (png, svg, pdf, ...).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := report.LoadSummary(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(args[0]), "grafico_"+goal+".png")
			}
			entries := report.Ranking(rows, goal)
			if err := report.SaveGoalChart(out, goal, entries); err != nil {
				return fmt.Errorf("%s: %w", goal, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d courts → %s\n", goal, len(entries), out)
			return nil
		},
	}
	c.Flags().StringVarP(&out, "output", "o", "", "output image (default grafico_<goal>.png next to the summary)")
	c.Flags().StringVarP(&goal, "goal", "g", goals.Goal1Key, "goal column to chart")
	return c
}
