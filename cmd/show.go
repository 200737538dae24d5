package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Laraewellen/metas-judiciarias-etl/report"
)

func newShowCmd(a *app) *cobra.Command {
	var goal string
	c := &cobra.Command{
		Use:   "show <summary.csv>",
		Short: "Print the court ranking of each goal in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := report.LoadSummary(args[0])
			if err != nil {
				return err
			}
			keys := report.GoalKeys(rows)
			if goal != "" {
				keys = []string{goal}
			}
			w := cmd.OutOrStdout()
			for i, k := range keys {
				if i > 0 {
					fmt.Fprintln(w)
				}
				report.RenderRanking(w, k, report.Ranking(rows, k))
			}
			return nil
		},
	}
	c.Flags().StringVarP(&goal, "goal", "g", "", "show only this goal")
	return c
}
