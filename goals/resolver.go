package goals

import (
	"sort"
	"sync"
)

// Reporter receives branch labels that have no factor set of their own.
type Reporter interface {
	UnmappedBranch(label string)
}

// Resolution is the outcome of resolving a court's branch.
type Resolution struct {
	Label     string // branch label as found in the file
	CourtCode string
	Branch    string // canonical branch key
	Factors   FactorSet
	Fallback  bool // Factors is the default branch's set
}

// Resolver maps (branch label, court code) pairs to canonical branches.
type Resolver struct {
	factors *FactorTable
	report  Reporter
}

// NewResolver returns a resolver over ft. report may be nil.
func NewResolver(ft *FactorTable, report Reporter) *Resolver {
	return &Resolver{factors: ft, report: report}
}

// Resolve never fails: branches without a factor set use the default one and
// are passed to the reporter.
func (r *Resolver) Resolve(label, courtCode string) Resolution {
	ft := r.factors
	branch := label
	switch {
	case ft.superiorLabel != "" && label == ft.superiorLabel:
		if b, ok := ft.superiorCourts[courtCode]; ok {
			branch = b
		}
	case ft.electoralLabel != "" && label == ft.electoralLabel:
		branch = ft.electoralBranch
	}

	res := Resolution{Label: label, CourtCode: courtCode, Branch: branch}
	if set, ok := ft.Branch(branch); ok {
		res.Factors = set
		return res
	}
	res.Factors = ft.Default()
	res.Fallback = true
	if r.report != nil {
		r.report.UnmappedBranch(label)
	}
	return res
}

// LabelSet is a run-scoped Reporter safe for concurrent use. Each label is
// kept once; onFirst, when set, runs the first time a label is seen.
type LabelSet struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	onFirst func(label string)
}

// NewLabelSet returns an empty set.
func NewLabelSet(onFirst func(label string)) *LabelSet {
	return &LabelSet{seen: make(map[string]struct{}), onFirst: onFirst}
}

// UnmappedBranch implements Reporter.
func (s *LabelSet) UnmappedBranch(label string) {
	s.mu.Lock()
	_, dup := s.seen[label]
	if !dup {
		s.seen[label] = struct{}{}
	}
	s.mu.Unlock()
	if !dup && s.onFirst != nil {
		s.onFirst(label)
	}
}

// Labels returns the reported labels in sorted order.
func (s *LabelSet) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.seen))
	for l := range s.seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
