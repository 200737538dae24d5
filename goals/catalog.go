package goals

import "fmt"

// Goal1Key is the summary key of the top-level goal.
const Goal1Key = "meta1"

// Goal1Factor is applied to goal 1 regardless of branch.
const Goal1Factor = 100

// DefaultYear is the reference year of the goal-1 columns.
const DefaultYear = 2025

// Definition binds a goal to its columns and factor key.
type Definition struct {
	Key        string
	FactorKey  string
	Judged     string
	Inflow     string
	Subtracted string
	// Special goals use court-specific columns and are only computed when the
	// resolved branch declares FactorKey. A numeric special result removes the
	// Supersedes keys from the row.
	Special    bool
	Supersedes []string
}

// general lists factor key and column suffix for every general goal.
var general = [][2]string{
	{"2a", "2_a"}, {"2b", "2_b"}, {"2c", "2_c"}, {"2ant", "2_ant"},
	{"4a", "4_a"}, {"4b", "4_b"},
	{"6", "6_a"},
	{"7a", "7_a"}, {"7b", "7_b"},
	{"8a", "8_a"}, {"8b", "8_b"},
	{"10a", "10_a"}, {"10b", "10_b"},
}

var special = []Definition{
	{
		Key: "meta8_stj", FactorKey: "8",
		Judged: "julgm8", Inflow: "dism8", Subtracted: "suspm8",
		Special: true, Supersedes: []string{"meta8a", "meta8b"},
	},
	{
		Key: "meta10_stj", FactorKey: "10",
		Judged: "julgm10", Inflow: "dism10", Subtracted: "suspm10",
		Special: true, Supersedes: []string{"meta10a", "meta10b"},
	},
}

// General returns the general goal definitions in catalogue order.
func General() []Definition {
	defs := make([]Definition, 0, len(general))
	for _, g := range general {
		defs = append(defs, Definition{
			Key:        "meta" + g[0],
			FactorKey:  g[0],
			Judged:     "julgm" + g[1],
			Inflow:     "distm" + g[1],
			Subtracted: "suspm" + g[1],
		})
	}
	return defs
}

// Special returns the STJ-specific goal definitions.
func Special() []Definition {
	defs := make([]Definition, len(special))
	for i, d := range special {
		d.Supersedes = append([]string(nil), d.Supersedes...)
		defs[i] = d
	}
	return defs
}

// Keys returns every catalogue key: goal 1, general goals, special goals.
func Keys() []string {
	keys := []string{Goal1Key}
	for _, d := range General() {
		keys = append(keys, d.Key)
	}
	for _, d := range Special() {
		keys = append(keys, d.Key)
	}
	return keys
}

// Goal1Columns names the columns of goal 1 for a reference year.
type Goal1Columns struct {
	Judged    string
	New       string
	Unfrozen  string
	Suspended string
}

// Goal1ColumnsFor returns the goal-1 column names for year.
func Goal1ColumnsFor(year int) Goal1Columns {
	return Goal1Columns{
		Judged:    fmt.Sprintf("julgados_%d", year),
		New:       fmt.Sprintf("casos_novos_%d", year),
		Unfrozen:  fmt.Sprintf("dessobrestados_%d", year),
		Suspended: fmt.Sprintf("suspensos_%d", year),
	}
}
