package reporter

import (
	"sort"
	"strings"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/workbook"

	"github.com/shopspring/decimal"
)

// Pivot labels.
const (
	TotalColumn = "Total"
	GrandTotal  = "Grand Total"
	blankLabel  = "(blank)"
)

// Pivot describes a summary of Value summed over the Rows fields, spread
// across the distinct values of Column. Filter, when set, becomes the
// leading row field so the flattened sheet can be filtered on it.
type Pivot struct {
	Rows   []string
	Column string
	Value  string
	Filter string
}

type pivotGroup struct {
	labels []string
	cells  map[string]decimal.Decimal
	total  decimal.Decimal
}

// Flatten aggregates t into a table with one row per distinct combination
// of the row fields, one column per distinct Column value and a Total, and
// a closing Grand Total row. Values that do not parse count as zero.
func (p Pivot) Flatten(t *models.Table) *models.Table {
	fields := p.fields()
	spread := p.spread(t)

	groups := make(map[string]*pivotGroup)
	var order []string
	for r := 0; r < t.Len(); r++ {
		labels := make([]string, len(fields))
		for i, f := range fields {
			labels[i] = strings.TrimSpace(t.Get(f, r))
		}
		key := strings.Join(labels, "\x1f")
		g, ok := groups[key]
		if !ok {
			g = &pivotGroup{labels: labels, cells: make(map[string]decimal.Decimal)}
			groups[key] = g
			order = append(order, key)
		}
		v := models.DecimalOrZero(t.Get(p.Value, r))
		col := p.columnLabel(t, r)
		g.cells[col] = g.cells[col].Add(v)
		g.total = g.total.Add(v)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := groups[order[i]].labels, groups[order[j]].labels
		for k := range a {
			if fa, fb := models.FoldKey(a[k]), models.FoldKey(b[k]); fa != fb {
				return fa < fb
			}
		}
		return false
	})

	out := models.NewTable(append(append(append([]string{}, fields...), spread...), TotalColumn)...)
	grand := &pivotGroup{cells: make(map[string]decimal.Decimal)}
	for _, key := range order {
		g := groups[key]
		row := make(map[string]string, len(fields)+len(spread)+1)
		for i, f := range fields {
			row[f] = g.labels[i]
		}
		for _, col := range spread {
			if v, ok := g.cells[col]; ok {
				row[col] = models.FormatMoney(v)
				grand.cells[col] = grand.cells[col].Add(v)
			}
		}
		row[TotalColumn] = models.FormatMoney(g.total)
		grand.total = grand.total.Add(g.total)
		out.AppendRow(row)
	}

	row := map[string]string{TotalColumn: models.FormatMoney(grand.total)}
	if len(fields) > 0 {
		row[fields[0]] = GrandTotal
	}
	for _, col := range spread {
		row[col] = models.FormatMoney(grand.cells[col])
	}
	out.AppendRow(row)
	return out
}

// Tab flattens t into a workbook tab whose value columns are written as
// dollars.
func (p Pivot) Tab(name string, t *models.Table) workbook.Tab {
	kinds := map[string]models.ColumnKind{TotalColumn: models.KindDollar}
	for _, col := range p.spread(t) {
		kinds[col] = models.KindDollar
	}
	return workbook.Tab{Name: name, Data: p.Flatten(t), Kinds: kinds}
}

func (p Pivot) fields() []string {
	var fields []string
	if p.Filter != "" {
		fields = append(fields, p.Filter)
	}
	return append(fields, p.Rows...)
}

func (p Pivot) columnLabel(t *models.Table, r int) string {
	if p.Column == "" {
		return ""
	}
	if v := strings.TrimSpace(t.Get(p.Column, r)); v != "" {
		return v
	}
	return blankLabel
}

// spread returns the value columns: the distinct Column values, in quarter
// order when every value is a quarter label and alphabetically otherwise.
func (p Pivot) spread(t *models.Table) []string {
	if p.Column == "" {
		return nil
	}
	seen := make(map[string]bool)
	var cols []string
	for r := 0; r < t.Len(); r++ {
		label := p.columnLabel(t, r)
		if !seen[label] {
			seen[label] = true
			cols = append(cols, label)
		}
	}

	quarters := true
	for _, c := range cols {
		if _, ok := models.ParseQuarter(c); !ok {
			quarters = false
			break
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		if quarters {
			a, _ := models.ParseQuarter(cols[i])
			b, _ := models.ParseQuarter(cols[j])
			return a < b
		}
		return cols[i] < cols[j]
	})
	return cols
}
