// Package principals holds the per-principal dispatch table: which vendor
// headers to rename before alias mapping and which columns to fill after it,
// selected by principal code and sheet name. The table is data
// (principals.yaml); adding a principal means adding an entry there.
package principals

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"taarcom-commissions/internal/models"
)

//go:embed principals.yaml
var defaultTable []byte

// SheetPredicate selects sheets by name. Matching is case-insensitive.
type SheetPredicate struct {
	Any      bool     `yaml:"any"`
	Equals   []string `yaml:"equals"`
	Contains []string `yaml:"contains"`
}

// Match reports whether the predicate accepts a sheet name
func (p SheetPredicate) Match(sheet string) bool {
	if p.Any {
		return true
	}
	name := strings.ToLower(strings.TrimSpace(sheet))
	for _, e := range p.Equals {
		if name == strings.ToLower(e) {
			return true
		}
	}
	for _, c := range p.Contains {
		if strings.Contains(name, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// Op is one column-write rule.
type Op struct {
	Op     string `yaml:"op"`
	Column string `yaml:"column,omitempty"`
	Value  string `yaml:"value,omitempty"`
	From   string `yaml:"from,omitempty"`
}

// Rule binds a sheet predicate to its pre-map renames and post-map ops.
type Rule struct {
	Sheet  SheetPredicate    `yaml:"sheet"`
	Rename map[string]string `yaml:"rename"`
	Ops    []Op              `yaml:"ops"`
}

// Principal is one manufacturer's entry.
type Principal struct {
	Code      string `yaml:"-"`
	Name      string `yaml:"name"`
	Unmatched string `yaml:"unmatched"`
	Rules     []Rule `yaml:"rules"`
}

// Table is the full dispatch table.
type Table struct {
	Finalize   []Op                  `yaml:"finalize"`
	Principals map[string]*Principal `yaml:"principals"`
}

// Plan is the resolved behavior for one sheet of one principal's report.
type Plan struct {
	Principal string
	Sheet     string
	Skip      bool
	Reason    string
	Rename    map[string]string
	Ops       []Op
	Finalize  []Op
}

// Load parses the embedded dispatch table
func Load() (*Table, error) {
	return Parse(defaultTable)
}

// MustLoad parses the embedded table and panics if it is invalid.
func MustLoad() *Table {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse reads a dispatch table and validates every op name.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid principal table: %w", err)
	}
	if t.Principals == nil {
		t.Principals = make(map[string]*Principal)
	}

	normalized := make(map[string]*Principal, len(t.Principals))
	for code, p := range t.Principals {
		code = strings.ToUpper(strings.TrimSpace(code))
		if p == nil {
			p = &Principal{}
		}
		p.Code = code
		for _, r := range p.Rules {
			for _, op := range r.Ops {
				if err := validateOp(op); err != nil {
					return nil, fmt.Errorf("principal %s: %w", code, err)
				}
			}
		}
		normalized[code] = p
	}
	t.Principals = normalized

	for _, op := range t.Finalize {
		if err := validateOp(op); err != nil {
			return nil, fmt.Errorf("finalize: %w", err)
		}
	}
	return &t, nil
}

// Codes returns the known principal codes, sorted
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.Principals))
	for c := range t.Principals {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns a principal entry, or nil for principals processed generically.
func (t *Table) Lookup(code string) *Principal {
	return t.Principals[strings.ToUpper(strings.TrimSpace(code))]
}

// PlanFor resolves the rule for a sheet. Principals absent from the table and
// sheets no rule matches get the generic plan, unless the principal skips
// unmatched sheets.
func (t *Table) PlanFor(code, sheet string) Plan {
	plan := Plan{
		Principal: strings.ToUpper(strings.TrimSpace(code)),
		Sheet:     sheet,
		Finalize:  t.Finalize,
	}

	p := t.Lookup(code)
	if p == nil {
		return plan
	}
	for _, r := range p.Rules {
		if r.Sheet.Match(sheet) {
			plan.Rename = r.Rename
			plan.Ops = r.Ops
			return plan
		}
	}
	if p.Unmatched == "skip" {
		plan.Skip = true
		plan.Reason = fmt.Sprintf("%s reports are only read from matching tabs", plan.Principal)
	}
	return plan
}

// CodeFromFilename infers a principal code from a report's file name: the
// first token of three letters that the table or the known set recognizes.
func (t *Table) CodeFromFilename(path string, known map[string]bool) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.'
	})
	for _, tok := range tokens {
		code := strings.ToUpper(tok)
		if len(code) != 3 {
			continue
		}
		if t.Lookup(code) != nil || known[code] {
			return code
		}
	}
	return ""
}

// PreMap applies the plan's header renames. Renames whose source is absent
// are ignored.
func (p Plan) PreMap(table *models.Table) error {
	keys := make([]string, 0, len(p.Rename))
	for from := range p.Rename {
		keys = append(keys, from)
	}
	sort.Strings(keys)

	for _, from := range keys {
		for _, col := range table.Columns() {
			if !strings.EqualFold(strings.TrimSpace(col), from) {
				continue
			}
			if err := table.RenameColumn(col, p.Rename[from]); err != nil {
				return fmt.Errorf("pre-map rename of %q: %w", col, err)
			}
		}
	}
	return nil
}
