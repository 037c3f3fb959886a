// Package dataset holds the in-memory columnar representation of an uploaded table.
package dataset

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the stored type of a column.
type Kind int

const (
	Text Kind = iota
	Numeric
	Datetime
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Datetime:
		return "datetime"
	default:
		return "text"
	}
}

var (
	// ErrEmpty is returned when a source holds no rows or no columns.
	ErrEmpty = errors.New("dataset is empty")
	// ErrUnsupportedFormat is returned when no loader accepts a path.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Cell is one value. Only the field matching the column Kind is meaningful.
// Valid is false for a missing value.
type Cell struct {
	Str   string
	Num   float64
	Time  time.Time
	Valid bool
}

// Column is a named, typed cell sequence.
type Column struct {
	Name  string
	Kind  Kind
	Cells []Cell
}

// Dataset is an ordered set of equally long columns.
type Dataset struct {
	Name    string
	Columns []*Column
}

// New returns an empty dataset.
func New(name string) *Dataset { return &Dataset{Name: name} }

// Rows returns the row count.
func (d *Dataset) Rows() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Cells)
}

// Cols returns the column count.
func (d *Dataset) Cols() int {
	if d == nil {
		return 0
	}
	return len(d.Columns)
}

// Empty reports whether the dataset has no rows or no columns.
func (d *Dataset) Empty() bool { return d.Rows() == 0 || d.Cols() == 0 }

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) *Column {
	for _, c := range d.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Name: d.Name, Columns: make([]*Column, len(d.Columns))}
	for i, c := range d.Columns {
		cells := make([]Cell, len(c.Cells))
		copy(cells, c.Cells)
		out.Columns[i] = &Column{Name: c.Name, Kind: c.Kind, Cells: cells}
	}
	return out
}

// KeepRows retains the rows whose keep flag is true, preserving order.
func (d *Dataset) KeepRows(keep []bool) {
	for _, c := range d.Columns {
		kept := c.Cells[:0]
		for i, cell := range c.Cells {
			if keep[i] {
				kept = append(kept, cell)
			}
		}
		c.Cells = kept
	}
}

// DropColumns removes the columns for which drop returns true.
func (d *Dataset) DropColumns(drop func(*Column) bool) int {
	kept := d.Columns[:0]
	removed := 0
	for _, c := range d.Columns {
		if drop(c) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	d.Columns = kept
	return removed
}

// RowMissing reports whether every cell of row i is missing.
func (d *Dataset) RowMissing(i int) bool {
	for _, c := range d.Columns {
		if c.Cells[i].Valid {
			return false
		}
	}
	return true
}

// RowKey returns a canonical key for row i; equal keys mean exactly equal rows.
func (d *Dataset) RowKey(i int) string {
	var b strings.Builder
	for _, c := range d.Columns {
		b.WriteString(c.Format(i, "\x00"))
		b.WriteByte(0x1f)
	}
	return b.String()
}

// DuplicateMask flags every row that repeats an earlier row.
func (d *Dataset) DuplicateMask() []bool {
	n := d.Rows()
	dup := make([]bool, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		k := d.RowKey(i)
		if _, ok := seen[k]; ok {
			dup[i] = true
			continue
		}
		seen[k] = struct{}{}
	}
	return dup
}

// Missing returns the number of missing cells.
func (c *Column) Missing() int {
	n := 0
	for _, cell := range c.Cells {
		if !cell.Valid {
			n++
		}
	}
	return n
}

// Floats returns the non-missing values of a numeric column in row order.
func (c *Column) Floats() []float64 {
	if c.Kind != Numeric {
		return nil
	}
	out := make([]float64, 0, len(c.Cells))
	for _, cell := range c.Cells {
		if cell.Valid {
			out = append(out, cell.Num)
		}
	}
	return out
}

// Format renders cell i as text; missing cells render as na.
func (c *Column) Format(i int, na string) string {
	cell := c.Cells[i]
	if !cell.Valid {
		return na
	}
	switch c.Kind {
	case Numeric:
		return FormatNumber(cell.Num)
	case Datetime:
		return FormatTime(cell.Time)
	default:
		return cell.Str
	}
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatTime prints a date, or a date and time when the clock part is set.
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
