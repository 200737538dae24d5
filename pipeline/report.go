package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
)

// SkippedFile is an input that produced no summary row.
type SkippedFile struct {
	Path   string
	Reason string
}

// Report is the outcome of a run. Rows keep the order of the input file list.
type Report struct {
	RunID            string
	Files            int
	Rows             []goals.Row
	Sources          []string // input path of each row
	ConsolidatedRows int
	Skipped          []SkippedFile
	UnmappedBranches []string
	Warnings         []string
}

// warnings collects messages from the run; list returns them deduplicated and
// sorted.
type warnings struct {
	seen map[string]struct{}
}

func (w *warnings) add(format string, args ...any) {
	if w.seen == nil {
		w.seen = make(map[string]struct{})
	}
	w.seen[fmt.Sprintf(format, args...)] = struct{}{}
}

func (w *warnings) list() []string {
	out := make([]string, 0, len(w.seen))
	for m := range w.seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

type duplicateCode struct {
	code  string
	files []string
}

// findDuplicateCodes reports court codes that appear in more than one input
// file. Each court is expected to ship exactly one table per run, so a repeat
// usually means a stale export was left next to a fresh one.
func findDuplicateCodes(rows []goals.Row, sources []string) []duplicateCode {
	byCode := make(map[string][]string)
	for i, r := range rows {
		code := strings.ToUpper(strings.TrimSpace(r.CourtCode))
		if code == "" {
			continue
		}
		byCode[code] = append(byCode[code], filepath.Base(sources[i]))
	}

	var dups []duplicateCode
	for code, files := range byCode {
		if len(files) < 2 {
			continue
		}
		sort.Strings(files)
		dups = append(dups, duplicateCode{code: code, files: files})
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].code < dups[j].code })
	return dups
}
