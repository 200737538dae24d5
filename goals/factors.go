package goals

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed factors.yaml
var defaultFactorsYAML []byte

// Factor is a branch- and goal-specific multiplier. The zero Factor is NA.
type Factor struct {
	v     float64
	valid bool
}

// FactorNA marks a goal a branch does not weight.
var FactorNA = Factor{}

// NewFactor returns a usable factor for positive finite v and FactorNA otherwise.
func NewFactor(v float64) Factor {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return FactorNA
	}
	return Factor{v: v, valid: true}
}

// Value returns the multiplier and whether it is usable.
func (f Factor) Value() (float64, bool) { return f.v, f.valid }

func (f Factor) String() string {
	if !f.valid {
		return naToken
	}
	return strconv.FormatFloat(f.v, 'f', -1, 64)
}

// FactorSet maps goal factor keys to factors for one branch. A key that is
// declared with NA is different from an absent key: only absent keys fall back
// to the default branch.
type FactorSet struct {
	m map[string]Factor
}

// Get returns the factor declared for key.
func (s FactorSet) Get(key string) (Factor, bool) {
	f, ok := s.m[key]
	return f, ok
}

// Keys returns the declared keys in sorted order.
func (s FactorSet) Keys() []string {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of declared keys.
func (s FactorSet) Len() int { return len(s.m) }

// FactorTable is the immutable weighting configuration for a run, together
// with the label rules the resolver needs.
type FactorTable struct {
	defaultBranch   string
	branches        map[string]FactorSet
	superiorLabel   string
	superiorCourts  map[string]string
	electoralLabel  string
	electoralBranch string
}

// DefaultBranch returns the key of the fallback branch.
func (t *FactorTable) DefaultBranch() string { return t.defaultBranch }

// Branch returns the factor set of a canonical branch.
func (t *FactorTable) Branch(name string) (FactorSet, bool) {
	s, ok := t.branches[name]
	return s, ok
}

// Default returns the fallback factor set.
func (t *FactorTable) Default() FactorSet { return t.branches[t.defaultBranch] }

// Branches returns all canonical branch keys, sorted.
func (t *FactorTable) Branches() []string {
	names := make([]string, 0, len(t.branches))
	for n := range t.branches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the factor for key from set, falling back to the default
// branch when set does not declare key. Missing everywhere yields FactorNA.
func (t *FactorTable) Lookup(set FactorSet, key string) Factor {
	if f, ok := set.Get(key); ok {
		return f
	}
	if f, ok := t.Default().Get(key); ok {
		return f
	}
	return FactorNA
}

type factorFile struct {
	DefaultBranch  string `yaml:"default_branch"`
	SuperiorCourts struct {
		Label  string            `yaml:"label"`
		Courts map[string]string `yaml:"courts"`
	} `yaml:"superior_courts"`
	Electoral struct {
		Label  string `yaml:"label"`
		Branch string `yaml:"branch"`
	} `yaml:"electoral"`
	Branches map[string]map[string]factorValue `yaml:"branches"`
}

type factorValue struct {
	f Factor
}

func (fv *factorValue) UnmarshalYAML(n *yaml.Node) error {
	f, err := ParseFactor(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	fv.f = f
	return nil
}

// ParseFactor accepts a number, a ratio "a/b" or "NA".
func ParseFactor(s string) (Factor, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, naToken) {
		return FactorNA, nil
	}
	num, den, isRatio := strings.Cut(s, "/")
	a, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return FactorNA, fmt.Errorf("factor %q: %w", s, err)
	}
	v := a
	if isRatio {
		b, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return FactorNA, fmt.Errorf("factor %q: %w", s, err)
		}
		if b == 0 {
			return FactorNA, fmt.Errorf("factor %q: division by zero", s)
		}
		v = a / b
	}
	f := NewFactor(v)
	if _, ok := f.Value(); !ok {
		return FactorNA, fmt.Errorf("factor %q: must be positive", s)
	}
	return f, nil
}

// DefaultFactors returns the built-in factor table.
func DefaultFactors() *FactorTable {
	t, err := ParseFactors(defaultFactorsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded factors.yaml: %v", err))
	}
	return t
}

// LoadFactors reads a factor table from a YAML file.
func LoadFactors(path string) (*FactorTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read factors: %w", err)
	}
	t, err := ParseFactors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseFactors decodes and validates a factor table.
func ParseFactors(data []byte) (*FactorTable, error) {
	var ff factorFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse factors: %w", err)
	}
	if len(ff.Branches) == 0 {
		return nil, fmt.Errorf("factors: no branches defined")
	}
	if _, ok := ff.Branches[ff.DefaultBranch]; !ok {
		return nil, fmt.Errorf("factors: default branch %q is not defined", ff.DefaultBranch)
	}

	t := &FactorTable{
		defaultBranch:   ff.DefaultBranch,
		branches:        make(map[string]FactorSet, len(ff.Branches)),
		superiorLabel:   ff.SuperiorCourts.Label,
		superiorCourts:  make(map[string]string, len(ff.SuperiorCourts.Courts)),
		electoralLabel:  ff.Electoral.Label,
		electoralBranch: ff.Electoral.Branch,
	}
	for name, entries := range ff.Branches {
		set := FactorSet{m: make(map[string]Factor, len(entries))}
		for key, v := range entries {
			set.m[key] = v.f
		}
		t.branches[name] = set
	}
	for code, branch := range ff.SuperiorCourts.Courts {
		t.superiorCourts[code] = branch
	}
	return t, nil
}
