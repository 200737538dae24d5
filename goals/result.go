// Package goals computes the judicial performance goals ("metas") of a court
// from its case-count table and the weighting factors of its branch.
package goals

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const naToken = "NA"

// Result is a goal value rounded to two decimals, or NA.
type Result struct {
	v  float64
	ok bool
}

// NA is the "not available" result.
var NA = Result{}

// Value returns a numeric result, rounded with Round.
func Value(v float64) Result {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NA
	}
	return Result{v: Round(v), ok: true}
}

// Round rounds to two decimal places, halves away from zero. Negative zero is
// normalised to zero.
func Round(x float64) float64 {
	r := math.Round(x*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// Float returns the value and false for NA.
func (r Result) Float() (float64, bool) { return r.v, r.ok }

// IsNA reports whether the result is not available.
func (r Result) IsNA() bool { return !r.ok }

// String renders the value with two decimals or the NA token.
func (r Result) String() string {
	if !r.ok {
		return naToken
	}
	return strconv.FormatFloat(r.v, 'f', 2, 64)
}

// ParseResult reads a rendered result back.
func ParseResult(s string) (Result, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, naToken) {
		return NA, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NA, fmt.Errorf("goal value %q: %w", s, err)
	}
	return Value(v), nil
}
