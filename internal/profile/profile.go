// Package profile computes structural and statistical metadata over a cleaned dataset.
package profile

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/stats"
)

// TopN is the number of most common values kept per categorical column.
const TopN = 5

// BasicInfo describes the dataset shape.
type BasicInfo struct {
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	TotalCells   int      `json:"total_cells"`
	MemoryUsage  int64    `json:"memory_usage"`
	ColumnNames  []string `json:"column_names"`
}

// ColumnTypes partitions the column names. Every column appears in exactly one list.
type ColumnTypes struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
	Datetime    []string `json:"datetime"`
}

// NumericStats holds per-column statistics. A nil pointer means the value is
// undefined for the column (no values, or fewer than two for Std).
type NumericStats struct {
	Count      int      `json:"count"`
	Mean       *float64 `json:"mean"`
	Median     *float64 `json:"median"`
	Std        *float64 `json:"std"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Q25        *float64 `json:"q25"`
	Q75        *float64 `json:"q75"`
	Missing    int      `json:"missing"`
	MissingPct float64  `json:"missing_pct"`
}

// ValueShare is one entry of a top-N table.
type ValueShare struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// CategoricalStats holds per-column frequency information.
type CategoricalStats struct {
	UniqueCount int          `json:"unique_count"`
	Missing     int          `json:"missing"`
	MissingPct  float64      `json:"missing_pct"`
	MostCommon  []ValueShare `json:"most_common"`
	Mode        string       `json:"mode"`
}

// DataQuality summarizes completeness and duplication.
type DataQuality struct {
	CompletenessScore   float64 `json:"completeness_score"`
	TotalMissingCells   int     `json:"total_missing_cells"`
	MissingPercentage   float64 `json:"missing_percentage"`
	DuplicateRows       int     `json:"duplicate_rows"`
	DuplicatePercentage float64 `json:"duplicate_percentage"`
	OverallQualityScore float64 `json:"overall_quality_score"`
}

// Profile is the full statistical summary of a dataset.
type Profile struct {
	BasicInfo        BasicInfo                   `json:"basic_info"`
	ColumnTypes      ColumnTypes                 `json:"column_types"`
	NumericStats     map[string]NumericStats     `json:"numeric_stats"`
	CategoricalStats map[string]CategoricalStats `json:"categorical_stats"`
	DataQuality      DataQuality                 `json:"data_quality"`
	Warnings         []string                    `json:"warnings,omitempty"`
}

// Build profiles d. It never modifies d. Statistics that cannot be computed for
// one column are recorded as warnings and the rest of the profile is kept.
func Build(d *dataset.Dataset) (*Profile, error) {
	p := &Profile{
		NumericStats:     map[string]NumericStats{},
		CategoricalStats: map[string]CategoricalStats{},
	}
	p.BasicInfo = BasicInfo{
		TotalRows:    d.Rows(),
		TotalColumns: d.Cols(),
		TotalCells:   d.Rows() * d.Cols(),
		MemoryUsage:  memoryEstimate(d),
		ColumnNames:  d.Names(),
	}
	p.ColumnTypes = Classify(d)
	for _, name := range p.ColumnTypes.Numeric {
		col := d.Column(name)
		if err := guard(func() { p.NumericStats[name] = numericStats(col, d.Rows()) }); err != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("numeric stats for %s: %v", name, err))
		}
	}
	for _, name := range p.ColumnTypes.Categorical {
		col := d.Column(name)
		if err := guard(func() { p.CategoricalStats[name] = categoricalStats(col, d.Rows()) }); err != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("categorical stats for %s: %v", name, err))
		}
	}
	p.DataQuality = quality(d)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

// Validate checks that the column partition is complete and disjoint.
func (p *Profile) Validate() error {
	seen := make(map[string]string, len(p.BasicInfo.ColumnNames))
	for kind, names := range map[string][]string{
		"numeric": p.ColumnTypes.Numeric, "categorical": p.ColumnTypes.Categorical, "datetime": p.ColumnTypes.Datetime,
	} {
		for _, n := range names {
			if prev, dup := seen[n]; dup {
				return fmt.Errorf("column %q classified as both %s and %s", n, prev, kind)
			}
			seen[n] = kind
		}
	}
	for _, n := range p.BasicInfo.ColumnNames {
		if _, ok := seen[n]; !ok {
			return fmt.Errorf("column %q is not classified", n)
		}
	}
	if len(seen) != len(p.BasicInfo.ColumnNames) {
		return errors.New("classified columns do not match the column list")
	}
	return nil
}

// Classify partitions columns. A numeric column with fewer than 10 distinct
// values that are also fewer than 5% of the rows is treated as categorical.
func Classify(d *dataset.Dataset) ColumnTypes {
	ct := ColumnTypes{Numeric: []string{}, Categorical: []string{}, Datetime: []string{}}
	rows := float64(d.Rows())
	for _, c := range d.Columns {
		switch c.Kind {
		case dataset.Numeric:
			u := unique(c)
			if u < 10 && float64(u) < rows*0.05 {
				ct.Categorical = append(ct.Categorical, c.Name)
			} else {
				ct.Numeric = append(ct.Numeric, c.Name)
			}
		case dataset.Datetime:
			ct.Datetime = append(ct.Datetime, c.Name)
		default:
			ct.Categorical = append(ct.Categorical, c.Name)
		}
	}
	return ct
}

func unique(c *dataset.Column) int {
	seen := make(map[string]struct{})
	for i, cell := range c.Cells {
		if cell.Valid {
			seen[c.Format(i, "")] = struct{}{}
		}
	}
	return len(seen)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func numericStats(c *dataset.Column, rows int) NumericStats {
	vals := c.Floats()
	sorted := stats.Sorted(vals)
	missing := c.Missing()
	st := NumericStats{Count: len(vals), Missing: missing, MissingPct: pct(missing, rows)}
	st.Mean = ptr(stats.Mean(vals))
	st.Median = ptr(stats.Quantile(sorted, 0.5))
	st.Std = ptr(stats.StdDev(vals))
	st.Min = ptr(stats.Quantile(sorted, 0))
	st.Max = ptr(stats.Quantile(sorted, 1))
	st.Q25 = ptr(stats.Quantile(sorted, 0.25))
	st.Q75 = ptr(stats.Quantile(sorted, 0.75))
	return st
}

func categoricalStats(c *dataset.Column, rows int) CategoricalStats {
	var vals []string
	for i, cell := range c.Cells {
		if cell.Valid {
			vals = append(vals, c.Format(i, ""))
		}
	}
	counts := stats.Counts(vals)
	missing := c.Missing()
	st := CategoricalStats{
		UniqueCount: len(counts),
		Missing:     missing,
		MissingPct:  pct(missing, rows),
		MostCommon:  []ValueShare{},
		Mode:        "N/A",
	}
	for i, vc := range counts {
		if i == TopN {
			break
		}
		st.MostCommon = append(st.MostCommon, ValueShare{Value: vc.Value, Count: vc.Count, Percentage: pct(vc.Count, rows)})
	}
	if c.Kind == dataset.Numeric {
		if m, ok := stats.ModeFloat(c.Floats()); ok {
			st.Mode = dataset.FormatNumber(m)
		}
	} else if m, ok := stats.ModeString(vals); ok {
		st.Mode = m
	}
	return st
}

func quality(d *dataset.Dataset) DataQuality {
	cells := d.Rows() * d.Cols()
	missing := 0
	for _, c := range d.Columns {
		missing += c.Missing()
	}
	dups := 0
	for _, isDup := range d.DuplicateMask() {
		if isDup {
			dups++
		}
	}
	q := DataQuality{
		TotalMissingCells:   missing,
		MissingPercentage:   pct(missing, cells),
		DuplicateRows:       dups,
		DuplicatePercentage: pct(dups, d.Rows()),
	}
	q.CompletenessScore = 100 - q.MissingPercentage
	q.OverallQualityScore = 0.7*q.CompletenessScore + 0.3*(100-q.DuplicatePercentage)
	return q
}

// memoryEstimate approximates the in-memory footprint of the cell data.
func memoryEstimate(d *dataset.Dataset) int64 {
	var n int64 = 128
	for _, c := range d.Columns {
		for _, cell := range c.Cells {
			switch c.Kind {
			case dataset.Text:
				n += int64(len(cell.Str)) + 16
			default:
				n += 8
			}
		}
	}
	return n
}
