// Package models holds the columnar dataset used throughout the pipeline and
// the canonical column vocabulary.
//
// A Table is a fixed header plus one string vector per column. Cells keep the
// textual form they were read or coerced into; typed access (decimal, date) is
// provided by helpers so that values which fail to parse survive untouched.
package models

import (
	"fmt"
	"sort"
)

// Table is a columnar dataset with an ordered header.
type Table struct {
	columns []string
	index   map[string]int
	data    [][]string
	rows    int
}

// NewTable creates an empty table with the given columns. Duplicate column
// names are dropped keeping the first occurrence.
func NewTable(columns ...string) *Table {
	t := &Table{index: make(map[string]int)}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return t.rows
}

// Columns returns a copy of the header in order
func (t *Table) Columns() []string {
	return append([]string{}, t.columns...)
}

// HasColumn reports whether the column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddColumn appends an empty column if it does not already exist.
func (t *Table) AddColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	t.data = append(t.data, make([]string, t.rows))
}

// RenameColumn renames a column in place. Renaming onto an existing name is
// an error so callers can detect duplicate canonical columns.
func (t *Table) RenameColumn(from, to string) error {
	if from == to {
		return nil
	}
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("column %q not found", from)
	}
	if _, exists := t.index[to]; exists {
		return fmt.Errorf("column %q already exists", to)
	}
	delete(t.index, from)
	t.index[to] = i
	t.columns[i] = to
	return nil
}

// DropColumn removes a column if present
func (t *Table) DropColumn(name string) {
	i, ok := t.index[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	t.data = append(t.data[:i], t.data[i+1:]...)
	t.reindex()
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c] = i
	}
}

// Column returns the vector for a column, or nil when it is absent. The
// returned slice aliases table storage.
func (t *Table) Column(name string) []string {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.data[i]
}

// Get returns the cell at (column, row); absent columns read as empty.
func (t *Table) Get(column string, row int) string {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= t.rows {
		return ""
	}
	return t.data[i][row]
}

// Set writes a cell, adding the column when necessary.
func (t *Table) Set(column string, row int, value string) {
	if row < 0 || row >= t.rows {
		return
	}
	t.AddColumn(column)
	t.data[t.index[column]][row] = value
}

// AppendRow appends a row given as column->value. Unknown columns are added.
// It returns the index of the new row.
func (t *Table) AppendRow(values map[string]string) int {
	for c := range values {
		if _, ok := t.index[c]; !ok {
			t.AddColumn(c)
		}
	}
	for i, c := range t.columns {
		t.data[i] = append(t.data[i], values[c])
	}
	t.rows++
	return t.rows - 1
}

// AppendRecord appends a row given positionally in header order.
func (t *Table) AppendRecord(record []string) int {
	for i := range t.columns {
		v := ""
		if i < len(record) {
			v = record[i]
		}
		t.data[i] = append(t.data[i], v)
	}
	t.rows++
	return t.rows - 1
}

// Row returns a copy of a row as column->value
func (t *Table) Row(row int) map[string]string {
	out := make(map[string]string, len(t.columns))
	if row < 0 || row >= t.rows {
		return out
	}
	for i, c := range t.columns {
		out[c] = t.data[i][row]
	}
	return out
}

// Record returns a row in header order
func (t *Table) Record(row int) []string {
	out := make([]string, len(t.columns))
	for i := range t.columns {
		out[i] = t.data[i][row]
	}
	return out
}

// Append concatenates other onto t. Columns missing on either side are added
// and left empty.
func (t *Table) Append(other *Table) {
	if other == nil {
		return
	}
	for _, c := range other.columns {
		t.AddColumn(c)
	}
	for i, c := range t.columns {
		src, ok := other.index[c]
		if ok {
			t.data[i] = append(t.data[i], other.data[src]...)
		} else {
			t.data[i] = append(t.data[i], make([]string, other.rows)...)
		}
	}
	t.rows += other.rows
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := NewTable(t.columns...)
	for r := 0; r < t.rows; r++ {
		if keep(r) {
			out.AppendRecord(t.Record(r))
		}
	}
	return out
}

// DeleteRows removes the given row indexes
func (t *Table) DeleteRows(rows map[int]bool) {
	if len(rows) == 0 {
		return
	}
	for i := range t.data {
		kept := t.data[i][:0]
		for r, v := range t.data[i] {
			if !rows[r] {
				kept = append(kept, v)
			}
		}
		t.data[i] = kept
	}
	t.rows -= countInRange(rows, t.rows)
}

func countInRange(rows map[int]bool, n int) int {
	c := 0
	for r, del := range rows {
		if del && r >= 0 && r < n {
			c++
		}
	}
	return c
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	out := NewTable(t.columns...)
	for i := range t.data {
		out.data[i] = append([]string{}, t.data[i]...)
	}
	out.rows = t.rows
	return out
}

// Select returns a new table with exactly the given columns in that order.
// Columns absent from t are created empty.
func (t *Table) Select(columns ...string) *Table {
	out := NewTable(columns...)
	for _, c := range out.columns {
		dst := out.index[c]
		if src, ok := t.index[c]; ok {
			out.data[dst] = append([]string{}, t.data[src]...)
		} else {
			out.data[dst] = make([]string, t.rows)
		}
	}
	out.rows = t.rows
	return out
}

// Reorder puts the given columns first, in order, followed by any remaining
// columns in their existing order. Missing columns are added empty.
func (t *Table) Reorder(columns ...string) *Table {
	order := append([]string{}, columns...)
	listed := make(map[string]bool, len(columns))
	for _, c := range columns {
		listed[c] = true
	}
	for _, c := range t.columns {
		if !listed[c] {
			order = append(order, c)
		}
	}
	return t.Select(order...)
}

// SortRows sorts rows in place using less over row indexes of the current order.
func (t *Table) SortRows(less func(a, b int) bool) {
	perm := make([]int, t.rows)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return less(perm[i], perm[j]) })
	for c := range t.data {
		sorted := make([]string, t.rows)
		for i, p := range perm {
			sorted[i] = t.data[c][p]
		}
		t.data[c] = sorted
	}
}

// Find returns the row indexes whose column equals value.
func (t *Table) Find(column, value string) []int {
	var hits []int
	for r, v := range t.Column(column) {
		if v == value {
			hits = append(hits, r)
		}
	}
	return hits
}

// Distinct returns the distinct non-empty values of a column in first-seen order.
func (t *Table) Distinct(column string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range t.Column(column) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
