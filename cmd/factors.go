package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFactorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "factors [branch]",
		Short: "Print the weighting factors of each judicial branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := a.cfg.Factors()
			if err != nil {
				return err
			}
			branches := ft.Branches()
			if len(args) == 1 {
				if _, ok := ft.Branch(args[0]); !ok {
					return fmt.Errorf("unknown branch %q (known: %s)", args[0], strings.Join(branches, ", "))
				}
				branches = args[:1]
			}
			w := cmd.OutOrStdout()
			for i, name := range branches {
				if i > 0 {
					fmt.Fprintln(w)
				}
				set, _ := ft.Branch(name)
				if name == ft.DefaultBranch() {
					fmt.Fprintf(w, "%s (default)\n", name)
				} else {
					fmt.Fprintln(w, name)
				}
				for _, k := range set.Keys() {
					f, _ := set.Get(k)
					fmt.Fprintf(w, "  %-6s %s\n", k, f)
				}
			}
			return nil
		},
	}
}
