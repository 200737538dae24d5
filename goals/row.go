package goals

import (
	"sort"

	"github.com/Laraewellen/metas-judiciarias-etl/table"
)

// Row is one court's summary: identification plus every goal result.
type Row struct {
	CourtCode string
	Label     string // original, unresolved branch label
	Branch    string // resolved branch, not written to the summary
	Goals     map[string]Result
}

// Get returns the result for key. ok is false when the key was removed from
// the row (superseded goals) or never computed.
func (r Row) Get(key string) (Result, bool) {
	v, ok := r.Goals[key]
	return v, ok
}

// Calculator builds summary rows against one factor table.
type Calculator struct {
	factors *FactorTable
	goal1   Goal1Columns
	general []Definition
	special []Definition
}

// NewCalculator returns a calculator whose goal 1 reads the columns of year.
func NewCalculator(ft *FactorTable, year int) *Calculator {
	return &Calculator{
		factors: ft,
		goal1:   Goal1ColumnsFor(year),
		general: General(),
		special: Special(),
	}
}

// BuildRow computes goal 1, every general goal and the special goals for t.
// General goals take their factor from the resolved set, or from the default
// branch when the set lacks the key. Special goals are only computed when the
// resolved set declares their factor key; when one yields a number, its
// generic partners are removed from the row.
func (c *Calculator) BuildRow(t *table.Table, res Resolution) Row {
	row := Row{
		CourtCode: res.CourtCode,
		Label:     res.Label,
		Branch:    res.Branch,
		Goals:     make(map[string]Result, 1+len(c.general)+len(c.special)),
	}
	row.Goals[Goal1Key] = ComputeGoal1(t, c.goal1)

	for _, d := range c.general {
		f := c.factors.Lookup(res.Factors, d.FactorKey)
		row.Goals[d.Key] = Compute(t, d.Judged, d.Inflow, d.Subtracted, f)
	}

	for _, d := range c.special {
		f, declared := res.Factors.Get(d.FactorKey)
		if !declared {
			row.Goals[d.Key] = NA
			continue
		}
		r := Compute(t, d.Judged, d.Inflow, d.Subtracted, f)
		row.Goals[d.Key] = r
		if r.IsNA() {
			continue
		}
		for _, k := range d.Supersedes {
			delete(row.Goals, k)
		}
	}
	return row
}

// OrderColumns returns the summary header: court code, branch label and goal 1
// first, then general goals, then special goals, then any other key, each
// group sorted lexicographically. Only keys present in some row are listed
// after the fixed head.
func OrderColumns(rows []Row) []string {
	generalKeys := make(map[string]bool)
	for _, d := range General() {
		generalKeys[d.Key] = true
	}
	specialKeys := make(map[string]bool)
	for _, d := range Special() {
		specialKeys[d.Key] = true
	}

	present := make(map[string]bool)
	for _, r := range rows {
		for k := range r.Goals {
			present[k] = true
		}
	}

	var gen, specials, other []string
	for k := range present {
		switch {
		case k == Goal1Key:
		case generalKeys[k]:
			gen = append(gen, k)
		case specialKeys[k]:
			specials = append(specials, k)
		default:
			other = append(other, k)
		}
	}
	sort.Strings(gen)
	sort.Strings(specials)
	sort.Strings(other)

	cols := []string{table.ColCourtCode, table.ColBranch, Goal1Key}
	cols = append(cols, gen...)
	cols = append(cols, specials...)
	return append(cols, other...)
}
