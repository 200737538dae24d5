package goals

import "github.com/Laraewellen/metas-judiciarias-etl/table"

// Compute returns round(Σnum / (Σdenom − Σsub) × factor, 2). It is NA when a
// column is absent, entirely missing or non-numeric, when the denominator is
// zero, or when the factor is not usable.
func Compute(t *table.Table, num, denom, sub string, f Factor) Result {
	n, ok := required(t, num)
	if !ok {
		return NA
	}
	d, ok := required(t, denom)
	if !ok {
		return NA
	}
	s, ok := required(t, sub)
	if !ok {
		return NA
	}
	factor, ok := f.Value()
	if !ok {
		return NA
	}
	den := d - s
	if den == 0 {
		return NA
	}
	return Value(n / den * factor)
}

// ComputeGoal1 evaluates goal 1: judged / (new + unfrozen − suspended) × 100.
// The unfrozen column counts as zero when absent or entirely missing.
func ComputeGoal1(t *table.Table, c Goal1Columns) Result {
	judged, ok := required(t, c.Judged)
	if !ok {
		return NA
	}
	newCases, ok := required(t, c.New)
	if !ok {
		return NA
	}
	suspended, ok := required(t, c.Suspended)
	if !ok {
		return NA
	}
	var unfrozen float64
	if t.Has(c.Unfrozen) {
		sum, _, err := t.Sum(c.Unfrozen)
		if err != nil {
			return NA
		}
		unfrozen = sum
	}
	den := newCases + unfrozen - suspended
	if den == 0 {
		return NA
	}
	return Value(judged / den * Goal1Factor)
}

func required(t *table.Table, col string) (float64, bool) {
	sum, n, err := t.Sum(col)
	if err != nil || n == 0 {
		return 0, false
	}
	return sum, true
}
