package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const barWidth = 40

// RenderRanking prints entries as a ranked table with proportional bars.
func RenderRanking(w io.Writer, title string, entries []Entry) {
	fmt.Fprintln(w, title)
	if len(entries) == 0 {
		fmt.Fprintln(w, "(no data)")
		return
	}

	maxName := len("Tribunal")
	maxV := 0.0
	for _, e := range entries {
		if len(e.Court) > maxName {
			maxName = len(e.Court)
		}
		maxV = math.Max(maxV, e.Value)
	}
	fmt.Fprintln(w)

	rowFmt := fmt.Sprintf("%%4s  %%-%ds  %%10s   %%s\n", maxName)
	fmt.Fprintf(w, rowFmt, "#", "Tribunal", "Valor", "")
	fmt.Fprintln(w, strings.Repeat("─", 4+2+maxName+2+10+3+barWidth))
	for i, e := range entries {
		fmt.Fprintf(w, rowFmt, strconv.Itoa(i+1), e.Court, formatValue(e.Value), bar(e.Value, maxV))
	}
}

// bar scales v against maxV; negative values draw nothing.
func bar(v, maxV float64) string {
	if maxV <= 0 || v <= 0 {
		return ""
	}
	n := int(math.Round(v / maxV * barWidth))
	return strings.Repeat("█", n)
}

// formatValue renders a goal value with two decimals and thousands separators.
func formatValue(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	out := groupThousands(intPart) + "." + frac
	if v < 0 {
		return "-" + out
	}
	return out
}

// groupThousands inserts a comma before every third digit from the right.
func groupThousands(digits string) string {
	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := 0; i < len(digits); i++ {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return string(out)
}
