package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// naTokens are read as missing, matching common spreadsheet/CSV exports.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-NaN": {}, "-nan": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNA reports whether a raw token denotes a missing value.
func IsNA(s string) bool {
	_, ok := naTokens[strings.TrimSpace(s)]
	return ok
}

// ParseNumber parses a numeric token. Thousands separators are accepted when
// both ',' and '.' appear; the later one is the decimal separator.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", ""))
	if raw == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, finite(f)
	}
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	if cpos < 0 || dpos < 0 {
		return 0, false
	}
	if cpos > dpos {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	} else {
		raw = strings.ReplaceAll(raw, ",", "")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, finite(f)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "2006-01-02 15:04", "2006-01-02 15:04:05",
	"01/02/2006", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// ParseTime tries the supported date layouts in order.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FromRecords builds a dataset from a header and raw string rows. Short rows
// are padded with missing cells. A column is numeric when every present value
// parses as a number, datetime when every present value parses as a date, and
// text otherwise.
func FromRecords(name string, header []string, rows [][]string) *Dataset {
	d := New(name)
	for j, h := range header {
		col := &Column{Name: h, Cells: make([]Cell, len(rows))}
		for i, rec := range rows {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			if IsNA(v) {
				continue
			}
			col.Cells[i] = Cell{Str: v, Valid: true}
		}
		inferKind(col)
		d.Columns = append(d.Columns, col)
	}
	return d
}

func inferKind(col *Column) {
	present, nums, times := 0, 0, 0
	for _, cell := range col.Cells {
		if !cell.Valid {
			continue
		}
		present++
		if _, ok := ParseNumber(cell.Str); ok {
			nums++
		} else if _, ok := ParseTime(cell.Str); ok {
			times++
		}
	}
	switch {
	case present > 0 && nums == present:
		col.Kind = Numeric
		for i := range col.Cells {
			if col.Cells[i].Valid {
				col.Cells[i].Num, _ = ParseNumber(col.Cells[i].Str)
				col.Cells[i].Str = ""
			}
		}
	case present > 0 && times == present:
		col.Kind = Datetime
		for i := range col.Cells {
			if col.Cells[i].Valid {
				col.Cells[i].Time, _ = ParseTime(col.Cells[i].Str)
				col.Cells[i].Str = ""
			}
		}
	default:
		col.Kind = Text
	}
}
