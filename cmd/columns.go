package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Laraewellen/metas-judiciarias-etl/pipeline"
	"github.com/Laraewellen/metas-judiciarias-etl/table"
)

func newColumnsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "columns [input-dir]",
		Short: "List the columns and first record of each CSV file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.InputDir
			if len(args) == 1 {
				dir = args[0]
			}
			files, err := pipeline.Discover(dir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, path := range files {
				describeFile(w, path, a.cfg.InputDelim())
			}
			return nil
		},
	}
}

func describeFile(w io.Writer, path string, delim rune) {
	name := filepath.Base(path)
	t, err := table.Load(path, delim)
	if err != nil {
		fmt.Fprintf(w, "%s: error: %v\n", name, err)
		return
	}
	fmt.Fprintf(w, "%s: %d columns, %d records, delimiter %q\n", name, len(t.Header), t.Len(), t.Delim)
	for _, col := range t.Header {
		fmt.Fprintf(w, "  %-28s %s\n", col, t.Cell(0, col))
	}
}
