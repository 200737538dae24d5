// Package report writes and reads the goal summary and renders it as charts,
// PDF pages and terminal rankings.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
	"github.com/Laraewellen/metas-judiciarias-etl/table"
)

// WriteSummary writes one line per row under the column order of
// goals.OrderColumns. A goal absent from a row (superseded) is an empty cell;
// an unavailable goal is "NA".
func WriteSummary(w io.Writer, rows []goals.Row, delim rune) error {
	cols := goals.OrderColumns(rows)
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, r := range rows {
		rec := make([]string, len(cols))
		rec[0], rec[1] = r.CourtCode, r.Label
		for i, c := range cols[2:] {
			if v, ok := r.Get(c); ok {
				rec[i+2] = v.String()
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryFile is WriteSummary to a new file at path.
func WriteSummaryFile(path string, rows []goals.Row, delim rune) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSummary(f, rows, delim); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ReadSummary parses a summary written by WriteSummary. The delimiter is
// detected. Empty goal cells are left out of the row.
func ReadSummary(r io.Reader, source string) ([]goals.Row, error) {
	t, err := table.Read(r, source, 0)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{table.ColCourtCode, table.ColBranch} {
		if !t.Has(col) {
			return nil, fmt.Errorf("%s: %s: %w", source, col, table.ErrMissingColumn)
		}
	}

	var keys []string
	for _, h := range t.Header {
		if h != table.ColCourtCode && h != table.ColBranch {
			keys = append(keys, h)
		}
	}

	rows := make([]goals.Row, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := goals.Row{
			CourtCode: t.Cell(i, table.ColCourtCode),
			Label:     t.Cell(i, table.ColBranch),
			Goals:     make(map[string]goals.Result, len(keys)),
		}
		for _, k := range keys {
			cell := t.Cell(i, k)
			if cell == "" {
				continue
			}
			v, err := goals.ParseResult(cell)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", source, i+1, err)
			}
			row.Goals[k] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadSummary reads the summary file at path.
func LoadSummary(path string) ([]goals.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSummary(f, path)
}

// Entry is one court's value for a goal.
type Entry struct {
	Court string
	Value float64
}

// Ranking returns the numeric values of key, highest first. Rows where the
// goal is NA or absent are left out. Ties are ordered by court code.
func Ranking(rows []goals.Row, key string) []Entry {
	var entries []Entry
	for _, r := range rows {
		v, ok := r.Get(key)
		if !ok {
			continue
		}
		f, ok := v.Float()
		if !ok {
			continue
		}
		entries = append(entries, Entry{Court: r.CourtCode, Value: f})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Court < entries[j].Court
	})
	return entries
}

// GoalKeys returns the goal columns of rows in summary order.
func GoalKeys(rows []goals.Row) []string {
	return goals.OrderColumns(rows)[2:]
}
