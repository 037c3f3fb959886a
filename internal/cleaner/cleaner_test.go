package cleaner

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insighto/internal/dataset"
)

func messy() *dataset.Dataset {
	return dataset.FromRecords("messy.csv",
		[]string{"name", "score", "qty", "", "empty", "sparse"},
		[][]string{
			{"a", "1", "5", "x", "", "1"},
			{"a", "1", "5", "x", "", "1"},
			{"b", "2", "six", "y", "", ""},
			{"c", "", "7", "z", "", ""},
			{"", "3", "8", "w", "", ""},
			{"d", "4", "9", "v", "", ""},
			{"e", "5", "10", "u", "", ""},
			{"f", "6", "11", "t", "", ""},
			{"g", "7", "12", "s", "", "2"},
			{"", "", "", "", "", ""},
		})
}

func csvBytes(t *testing.T, d *dataset.Dataset) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, d.WriteCSV(&buf))
	return buf.String()
}

func TestCleanPipeline(t *testing.T) {
	raw := messy()
	before := csvBytes(t, raw)

	out, rep := New(DefaultOptions()).Clean(context.Background(), raw)

	assert.Equal(t, before, csvBytes(t, raw), "input must not be modified")
	require.Len(t, rep.Entries, 6)
	assert.Equal(t, Summary{OriginalRows: 10, OriginalCols: 6, CleanedRows: 9, CleanedCols: 5}, rep.Summary)

	assert.Equal(t, []string{"name", "score", "qty", "Unnamed: 3", "sparse"}, out.Names())
	assert.Equal(t, "Removed 1 duplicate rows", rep.Entries[1])
	assert.Contains(t, rep.Entries[2], "qty: text -> numeric")
	assert.Equal(t, dataset.Numeric, out.Column("qty").Kind)
	assert.Contains(t, rep.Entries[3], "sparse: 7 missing (77.8%) - kept as-is")
	assert.Contains(t, rep.Entries[3], "score: filled 2 with median (4.00)")
	assert.Contains(t, rep.Entries[3], "name: filled 2 with mode ('a')")
	assert.Contains(t, rep.Entries[4], "1 empty columns")

	assert.Zero(t, out.Column("score").Missing())
	assert.Zero(t, out.Column("qty").Missing())
	assert.Equal(t, 7, out.Column("sparse").Missing())
}

func TestCleanIsIdempotent(t *testing.T) {
	c := New(DefaultOptions())
	once, _ := c.Clean(context.Background(), messy())
	twice, rep := c.Clean(context.Background(), once)

	assert.Equal(t, csvBytes(t, once), csvBytes(t, twice))
	assert.Equal(t, "No duplicate rows found", rep.Entries[1])
	assert.Equal(t, "Data types are appropriate", rep.Entries[2])
	assert.NotContains(t, rep.Entries[3], "filled")
	assert.Equal(t, rep.Summary.OriginalRows, rep.Summary.CleanedRows)
}

// A text column filled with a numeric-looking mode can cross the coercion
// ratio on a second pass, which turns its words into missing values.
func TestSecondPassCoercesModeFilledText(t *testing.T) {
	vals := []string{"5", "5", "5", "6", "7", "word", "text", "more", "", ""}
	raw := numbered(len(vals), func(i int) string { return vals[i] })
	c := New(DefaultOptions())

	once, rep := c.Clean(context.Background(), raw)
	assert.Equal(t, dataset.Text, once.Column("v").Kind)
	assert.Contains(t, rep.Entries[3], "v: filled 2 with mode ('5')")

	twice, rep := c.Clean(context.Background(), once)
	assert.Contains(t, rep.Entries[2], "v: text -> numeric")
	assert.Contains(t, rep.Entries[3], "v: filled 3 with median (5.00)")
	assert.Equal(t, dataset.Numeric, twice.Column("v").Kind)
	assert.Equal(t, []float64{5, 5, 5, 6, 7, 5, 5, 5, 5, 5}, twice.Column("v").Floats())
}

func numbered(n int, val func(i int) string) *dataset.Dataset {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{strconv.Itoa(i), val(i)}
	}
	return dataset.FromRecords("t", []string{"id", "v"}, rows)
}

func TestMissingBoundaries(t *testing.T) {
	c := New(DefaultOptions())

	half := numbered(10, func(i int) string {
		if i < 5 {
			return ""
		}
		return strconv.Itoa(i)
	})
	out, rep := c.Clean(context.Background(), half)
	assert.Equal(t, 5, out.Column("v").Missing())
	assert.Contains(t, rep.Entries[3], "v: 5 missing (50.0%) - kept as-is")

	most := numbered(100, func(i int) string {
		if i < 49 {
			return ""
		}
		return strconv.Itoa(i)
	})
	out, rep = c.Clean(context.Background(), most)
	assert.Zero(t, out.Column("v").Missing())
	assert.Contains(t, rep.Entries[3], "v: filled 49 with median (74.00)")
	assert.Equal(t, 74.0, out.Column("v").Cells[0].Num)
}

func TestCoercionThreshold(t *testing.T) {
	mostly := numbered(10, func(i int) string {
		if i < 3 {
			return "n/a-ish"
		}
		return strconv.Itoa(i)
	})
	out, _ := New(DefaultOptions()).Clean(context.Background(), mostly)
	assert.Equal(t, dataset.Numeric, out.Column("v").Kind, "7 of 10 rows convert")

	fewer := numbered(10, func(i int) string {
		if i < 4 {
			return "word"
		}
		return strconv.Itoa(i)
	})
	out, _ = New(DefaultOptions()).Clean(context.Background(), fewer)
	assert.Equal(t, dataset.Text, out.Column("v").Kind)
	assert.Equal(t, "word", out.Column("v").Cells[0].Str)
}

func TestOutliersReportedNotRemoved(t *testing.T) {
	vals := []string{"1", "2", "3", "4", "5", "100"}
	d := numbered(len(vals), func(i int) string { return vals[i] })
	out, rep := New(DefaultOptions()).Clean(context.Background(), d)
	assert.Equal(t, 6, out.Rows())
	assert.Contains(t, rep.Entries[5], "v: 1 potential outliers (16.7%)")
}

func TestFailedStepKeepsPriorState(t *testing.T) {
	c := New(DefaultOptions())
	c.steps[1] = step{"remove_duplicates", func(*dataset.Dataset) (string, error) {
		return "", errors.New("boom")
	}}
	c.steps[4] = step{"remove_empty", func(d *dataset.Dataset) (string, error) {
		d.Columns = nil
		panic("bad state")
	}}

	out, rep := c.Clean(context.Background(), messy())
	require.Len(t, rep.Entries, 6)
	assert.True(t, strings.HasPrefix(rep.Entries[1], "Warning: step remove_duplicates failed"))
	assert.Contains(t, rep.Entries[1], "stage_failure")
	assert.Contains(t, rep.Entries[4], "panic: bad state")
	assert.Equal(t, 10, out.Rows(), "duplicates survive the failed step")
	assert.Equal(t, 6, out.Cols(), "panicking step left no trace")
}

func TestShapeNeverGrows(t *testing.T) {
	for _, d := range []*dataset.Dataset{messy(), numbered(3, func(int) string { return "" })} {
		out, rep := New(DefaultOptions()).Clean(context.Background(), d)
		assert.LessOrEqual(t, out.Rows(), d.Rows())
		assert.LessOrEqual(t, out.Cols(), d.Cols())
		assert.Equal(t, out.Rows(), rep.Summary.CleanedRows)
	}
}
