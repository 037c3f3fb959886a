// Package cleaner turns a raw dataset into its canonical cleaned form and
// records every operation it applied.
package cleaner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insighto/internal/apperrors"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/stats"
)

// Options holds the hand-tuned cleaning thresholds.
type Options struct {
	// NumericCoerceRatio is the minimum share of all rows that must parse as
	// numbers before a text column is converted.
	NumericCoerceRatio float64
	// MissingSkipRatio is the missing share at or above which a column is
	// left as-is instead of imputed.
	MissingSkipRatio float64
	// OutlierIQRFactor scales the IQR fences.
	OutlierIQRFactor float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{NumericCoerceRatio: 0.70, MissingSkipRatio: 0.50, OutlierIQRFactor: 1.5}
}

// Summary compares the shape before and after cleaning.
type Summary struct {
	OriginalRows int `json:"original_rows"`
	OriginalCols int `json:"original_cols"`
	CleanedRows  int `json:"cleaned_rows"`
	CleanedCols  int `json:"cleaned_cols"`
}

// Report is the ordered audit log of a cleaning run.
type Report struct {
	Entries []string `json:"report"`
	Summary Summary  `json:"summary"`
}

type step struct {
	name string
	run  func(d *dataset.Dataset) (string, error)
}

// Cleaner applies a fixed sequence of isolated steps.
type Cleaner struct {
	opt   Options
	steps []step
}

// New builds a Cleaner. Zero thresholds fall back to the defaults.
func New(opt Options) *Cleaner {
	def := DefaultOptions()
	if opt.NumericCoerceRatio <= 0 {
		opt.NumericCoerceRatio = def.NumericCoerceRatio
	}
	if opt.MissingSkipRatio <= 0 {
		opt.MissingSkipRatio = def.MissingSkipRatio
	}
	if opt.OutlierIQRFactor <= 0 {
		opt.OutlierIQRFactor = def.OutlierIQRFactor
	}
	c := &Cleaner{opt: opt}
	c.steps = []step{
		{"standardize_columns", standardizeColumns},
		{"remove_duplicates", removeDuplicates},
		{"fix_types", c.fixTypes},
		{"missing_values", c.handleMissing},
		{"remove_empty", removeEmpty},
		{"outliers", c.detectOutliers},
	}
	return c
}

// Clean runs every step against a copy of raw. A step that fails leaves the
// dataset as the previous step produced it and adds a warning entry. The raw
// dataset is never modified.
func (c *Cleaner) Clean(ctx context.Context, raw *dataset.Dataset) (*dataset.Dataset, *Report) {
	log := zerolog.Ctx(ctx)
	rep := &Report{Summary: Summary{OriginalRows: raw.Rows(), OriginalCols: raw.Cols()}}
	work := raw.Clone()
	for _, s := range c.steps {
		next := work.Clone()
		entry, err := runStep(s, next)
		if err != nil {
			err = apperrors.New(apperrors.StageFailure, "clean."+s.name, err)
			log.Warn().Err(err).Str("step", s.name).Msg("cleaning step failed")
			rep.Entries = append(rep.Entries, fmt.Sprintf("Warning: step %s failed, previous state kept: %v", s.name, err))
			continue
		}
		work = next
		rep.Entries = append(rep.Entries, entry)
	}
	rep.Summary.CleanedRows = work.Rows()
	rep.Summary.CleanedCols = work.Cols()
	log.Debug().Int("rows", work.Rows()).Int("cols", work.Cols()).Msg("cleaning finished")
	return work, rep
}

func runStep(s step, d *dataset.Dataset) (entry string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.run(d)
}

// standardizeColumns gives every column a trimmed, non-empty, unique text name.
func standardizeColumns(d *dataset.Dataset) (string, error) {
	used := make(map[string]bool, d.Cols())
	changed := 0
	for i, c := range d.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[name] {
			base := name
			for n := 1; used[name]; n++ {
				name = fmt.Sprintf("%s.%d", base, n)
			}
		}
		used[name] = true
		if name != c.Name {
			changed++
			c.Name = name
		}
	}
	if changed > 0 {
		return fmt.Sprintf("Standardized %d column names", changed), nil
	}
	return "Column names are already standard text", nil
}

func removeDuplicates(d *dataset.Dataset) (string, error) {
	n := dropDuplicates(d)
	if n > 0 {
		return fmt.Sprintf("Removed %d duplicate rows", n), nil
	}
	return "No duplicate rows found", nil
}

func dropDuplicates(d *dataset.Dataset) int {
	dup := d.DuplicateMask()
	keep := make([]bool, len(dup))
	removed := 0
	for i, isDup := range dup {
		keep[i] = !isDup
		if isDup {
			removed++
		}
	}
	if removed > 0 {
		d.KeepRows(keep)
	}
	return removed
}

func (c *Cleaner) fixTypes(d *dataset.Dataset) (string, error) {
	rows := d.Rows()
	var changes []string
	for _, col := range d.Columns {
		if col.Kind != dataset.Text || rows == 0 {
			continue
		}
		parsed := make([]dataset.Cell, rows)
		ok := 0
		for i, cell := range col.Cells {
			if !cell.Valid {
				continue
			}
			if v, good := dataset.ParseNumber(cell.Str); good {
				parsed[i] = dataset.Cell{Num: v, Valid: true}
				ok++
			}
		}
		if float64(ok)/float64(rows) >= c.opt.NumericCoerceRatio {
			col.Kind = dataset.Numeric
			col.Cells = parsed
			changes = append(changes, fmt.Sprintf("%s: text -> numeric", col.Name))
		}
	}
	if len(changes) > 0 {
		return "Fixed data types: " + strings.Join(changes, ", "), nil
	}
	return "Data types are appropriate", nil
}

func (c *Cleaner) handleMissing(d *dataset.Dataset) (string, error) {
	rows := d.Rows()
	var info []string
	for _, col := range d.Columns {
		missing := col.Missing()
		if missing == 0 {
			continue
		}
		ratio := float64(missing) / float64(rows)
		if ratio >= c.opt.MissingSkipRatio {
			info = append(info, fmt.Sprintf("%s: %d missing (%.1f%%) - kept as-is", col.Name, missing, ratio*100))
			continue
		}
		info = append(info, fillColumn(col, missing))
	}
	if len(info) > 0 {
		return "Handled missing values:\n  " + strings.Join(info, "\n  "), nil
	}
	return "No missing values found", nil
}

func fillColumn(col *dataset.Column, missing int) string {
	switch col.Kind {
	case dataset.Numeric:
		med, _ := stats.Median(col.Floats())
		fill(col, dataset.Cell{Num: med, Valid: true})
		return fmt.Sprintf("%s: filled %d with median (%.2f)", col.Name, missing, med)
	case dataset.Datetime:
		var keys []string
		for i, cell := range col.Cells {
			if cell.Valid {
				keys = append(keys, col.Format(i, ""))
			}
		}
		mode, _ := stats.ModeString(keys)
		for i, cell := range col.Cells {
			if cell.Valid && col.Format(i, "") == mode {
				fill(col, cell)
				break
			}
		}
		return fmt.Sprintf("%s: filled %d with mode ('%s')", col.Name, missing, mode)
	default:
		var vals []string
		for _, cell := range col.Cells {
			if cell.Valid {
				vals = append(vals, cell.Str)
			}
		}
		mode, ok := stats.ModeString(vals)
		if !ok {
			fill(col, dataset.Cell{Str: "Unknown", Valid: true})
			return fmt.Sprintf("%s: filled %d with 'Unknown'", col.Name, missing)
		}
		fill(col, dataset.Cell{Str: mode, Valid: true})
		return fmt.Sprintf("%s: filled %d with mode ('%s')", col.Name, missing, mode)
	}
}

func fill(col *dataset.Column, v dataset.Cell) {
	for i := range col.Cells {
		if !col.Cells[i].Valid {
			col.Cells[i] = v
		}
	}
}

// removeEmpty drops all-missing rows and columns, then rows that imputation
// turned into exact duplicates so a second pass has nothing left to remove.
func removeEmpty(d *dataset.Dataset) (string, error) {
	keep := make([]bool, d.Rows())
	emptyRows := 0
	for i := range keep {
		keep[i] = !d.RowMissing(i)
		if !keep[i] {
			emptyRows++
		}
	}
	if emptyRows > 0 {
		d.KeepRows(keep)
	}
	emptyCols := d.DropColumns(func(c *dataset.Column) bool { return c.Missing() == len(c.Cells) })
	dups := dropDuplicates(d)

	if emptyRows == 0 && emptyCols == 0 && dups == 0 {
		return "No empty rows or columns found", nil
	}
	msg := fmt.Sprintf("Removed %d empty rows and %d empty columns", emptyRows, emptyCols)
	if dups > 0 {
		msg += fmt.Sprintf("; removed %d rows duplicated after imputation", dups)
	}
	return msg, nil
}

func (c *Cleaner) detectOutliers(d *dataset.Dataset) (string, error) {
	var info []string
	rows := d.Rows()
	for _, col := range d.Columns {
		if col.Kind != dataset.Numeric {
			continue
		}
		vals := col.Floats()
		b, ok := stats.IQRBounds(vals, c.opt.OutlierIQRFactor)
		if !ok {
			continue
		}
		if n := b.Outside(vals); n > 0 {
			info = append(info, fmt.Sprintf("%s: %d potential outliers (%.1f%%)", col.Name, n, float64(n)/float64(rows)*100))
		}
	}
	if len(info) > 0 {
		return "Outliers detected (not removed):\n  " + strings.Join(info, "\n  "), nil
	}
	return "No significant outliers detected", nil
}
