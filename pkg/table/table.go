// Package table provides an in-memory columnar table for flow records.
package table

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies how a column stores its values.
type Kind int

const (
	// Numeric columns hold float64 values; NaN marks a missing value.
	Numeric Kind = iota
	// Text columns hold raw strings; the empty string marks a missing value.
	Text
	// Indicator columns hold one-hot 0/1 values.
	Indicator
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	case Indicator:
		return "indicator"
	default:
		return "unknown"
	}
}

// ErrNoColumn is returned when a named column does not exist.
var ErrNoColumn = errors.New("no such column")

// Column is a named, typed column.
type Column struct {
	Name string
	Kind Kind

	// Num holds values for Numeric and Indicator columns.
	Num []float64
	// Str holds values for Text columns.
	Str []string
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	if c.Kind == Text {
		return len(c.Str)
	}
	return len(c.Num)
}

// IsNumeric reports whether the column holds float values.
func (c *Column) IsNumeric() bool {
	return c.Kind == Numeric || c.Kind == Indicator
}

// Cell returns the textual form of row i.
func (c *Column) Cell(i int) string {
	if c.Kind == Text {
		return c.Str[i]
	}
	return FormatFloat(c.Num[i])
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Num != nil {
		out.Num = append([]float64(nil), c.Num...)
	}
	if c.Str != nil {
		out.Str = append([]string(nil), c.Str...)
	}
	return out
}

func (c *Column) subset(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Text {
		out.Str = make([]string, len(rows))
		for i, r := range rows {
			out.Str[i] = c.Str[r]
		}
		return out
	}
	out.Num = make([]float64, len(rows))
	for i, r := range rows {
		out.Num[i] = c.Num[r]
	}
	return out
}

// Table is an ordered set of equal-length columns with unique names.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates an empty table with the given number of rows.
func New(rows int) *Table {
	return &Table{
		index: make(map[string]int),
		rows:  rows,
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return t.rows
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.cols)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column {
	return t.cols
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, errors.Wrapf(ErrNoColumn, "column %q", name)
	}
	return t.cols[i], nil
}

// Add appends a column. The column length must match the table.
func (t *Table) Add(c *Column) error {
	if _, ok := t.index[c.Name]; ok {
		return errors.Errorf("duplicate column %q", c.Name)
	}
	if c.Len() != t.rows {
		return errors.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// AddNumeric appends a numeric column.
func (t *Table) AddNumeric(name string, values []float64) error {
	return t.Add(&Column{Name: name, Kind: Numeric, Num: values})
}

// AddText appends a text column.
func (t *Table) AddText(name string, values []string) error {
	return t.Add(&Column{Name: name, Kind: Text, Str: values})
}

// AddIndicator appends a one-hot column.
func (t *Table) AddIndicator(name string, values []float64) error {
	return t.Add(&Column{Name: name, Kind: Indicator, Num: values})
}

// Replace swaps the named column for c, keeping its position.
func (t *Table) Replace(name string, c *Column) error {
	i, ok := t.index[name]
	if !ok {
		return errors.Wrapf(ErrNoColumn, "column %q", name)
	}
	if c.Len() != t.rows {
		return errors.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	if c.Name != name {
		if _, dup := t.index[c.Name]; dup {
			return errors.Errorf("duplicate column %q", c.Name)
		}
		delete(t.index, name)
		t.index[c.Name] = i
	}
	t.cols[i] = c
	return nil
}

// Drop removes the named columns. Absent names are ignored.
// It returns the names that were actually removed.
func (t *Table) Drop(names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		if t.Has(n) {
			drop[n] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	removed := make([]string, 0, len(drop))
	kept := t.cols[:0]
	for _, c := range t.cols {
		if drop[c.Name] {
			removed = append(removed, c.Name)
			continue
		}
		kept = append(kept, c)
	}
	t.cols = kept
	t.reindex()
	return removed
}

// MoveToEnd relocates the named column to the last position.
func (t *Table) MoveToEnd(name string) error {
	i, ok := t.index[name]
	if !ok {
		return errors.Wrapf(ErrNoColumn, "column %q", name)
	}
	c := t.cols[i]
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	t.cols = append(t.cols, c)
	t.reindex()
	return nil
}

// Select returns a new table holding copies of the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := New(t.rows)
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		if err := out.Add(c.clone()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Subset returns a new table containing the given rows in order.
func (t *Table) Subset(rows []int) (*Table, error) {
	for _, r := range rows {
		if r < 0 || r >= t.rows {
			return nil, errors.Errorf("row %d out of range [0,%d)", r, t.rows)
		}
	}
	out := New(len(rows))
	for _, c := range t.cols {
		if err := out.Add(c.subset(rows)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	out, _ := t.Subset(rows)
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.rows)
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	return out
}

// Row returns the textual cells of row i.
func (t *Table) Row(i int) []string {
	row := make([]string, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Cell(i)
	}
	return row
}

// RowKey returns a string identifying the full contents of row i.
// Two rows have equal keys exactly when every cell is equal, with NaN equal to NaN.
func (t *Table) RowKey(i int) string {
	var b strings.Builder
	for _, c := range t.cols {
		if c.Kind == Text {
			b.WriteByte('s')
			b.WriteString(strconv.Quote(c.Str[i]))
		} else {
			b.WriteByte('f')
			v := c.Num[i]
			if math.IsNaN(v) {
				b.WriteString("NaN")
			} else {
				b.WriteString(strconv.FormatUint(math.Float64bits(v+0), 16))
			}
		}
		b.WriteByte(0)
	}
	return b.String()
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.Name] = i
	}
}

// FormatFloat renders a value the way it would appear in a CSV cell.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseFloat parses a text cell as a number. Surrounding space is ignored and
// the infinity spellings accepted by strconv are recognized.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}
