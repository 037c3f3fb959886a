package dataset_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/insighto/internal/dataset"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadCSVInfersKinds(t *testing.T) {
	p := writeFile(t, "sales.csv", "region,amount,date\nNorth,10,2024-01-01\nSouth,NA,2024-01-02\n,12.5,\n")
	d, err := dataset.Load(p)
	require.NoError(t, err)

	assert.Equal(t, "sales.csv", d.Name)
	assert.Equal(t, 3, d.Rows())
	assert.Equal(t, []string{"region", "amount", "date"}, d.Names())
	assert.Equal(t, dataset.Text, d.Column("region").Kind)
	assert.Equal(t, dataset.Numeric, d.Column("amount").Kind)
	assert.Equal(t, dataset.Datetime, d.Column("date").Kind)
	assert.Equal(t, []float64{10, 12.5}, d.Column("amount").Floats())
	assert.Equal(t, 1, d.Column("region").Missing())
	assert.Equal(t, 1, d.Column("date").Missing())
}

func TestLoadSniffsSemicolon(t *testing.T) {
	p := writeFile(t, "eu.csv", "a;b\n1;x\n2;y\n")
	d, err := dataset.Load(p)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Cols())
	assert.Equal(t, dataset.Numeric, d.Column("a").Kind)
}

func TestLoadErrors(t *testing.T) {
	_, err := dataset.Load(writeFile(t, "notes.pdf", "x"))
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)

	_, err = dataset.Load(writeFile(t, "empty.csv", ""))
	assert.ErrorIs(t, err, dataset.ErrEmpty)

	_, err = dataset.Load(writeFile(t, "header.csv", "a,b\n"))
	assert.ErrorIs(t, err, dataset.ErrEmpty)

	assert.True(t, dataset.Supported("x.XLSX"))
	assert.False(t, dataset.Supported("x.json"))
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"name", "score"}, {"ann", 3}, {"bob", 4.5}}
	for i, r := range rows {
		for j, v := range r {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	p := filepath.Join(t.TempDir(), "scores.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	d, err := dataset.Load(p)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Rows())
	assert.Equal(t, dataset.Numeric, d.Column("score").Kind)
	assert.Equal(t, []float64{3, 4.5}, d.Column("score").Floats())
}

func TestParseNumber(t *testing.T) {
	cases := map[string]struct {
		want float64
		ok   bool
	}{
		"42":       {42, true},
		" -1.5e3 ": {-1500, true},
		"1,234.5":  {1234.5, true},
		"1.234,5":  {1234.5, true},
		"abc":      {0, false},
		"NaN":      {0, false},
		"":         {0, false},
	}
	for in, c := range cases {
		got, ok := dataset.ParseNumber(in)
		assert.Equal(t, c.ok, ok, in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-9, in)
		}
	}
}

func TestDuplicateMaskAndRowOps(t *testing.T) {
	d := dataset.FromRecords("t", []string{"a", "b"}, [][]string{
		{"1", "x"}, {"1", "x"}, {"", ""}, {"2", "y"}, {"1", "x"},
	})
	assert.Equal(t, []bool{false, true, false, false, true}, d.DuplicateMask())
	assert.True(t, d.RowMissing(2))

	c := d.Clone()
	c.KeepRows([]bool{true, false, false, true, false})
	assert.Equal(t, 2, c.Rows())
	assert.Equal(t, 5, d.Rows(), "clone must not share cells")

	n := c.DropColumns(func(col *dataset.Column) bool { return col.Name == "b" })
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, c.Names())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	d := dataset.FromRecords("t", []string{"n", "s", "d"}, [][]string{
		{"1", "a,b", "2024-03-01"}, {"2.25", "", "2024-03-02 10:30:00"},
	})
	var buf bytes.Buffer
	require.NoError(t, d.WriteCSV(&buf))
	assert.Equal(t, "n,s,d\n1,\"a,b\",2024-03-01\n2.25,,2024-03-02 10:30:00\n", buf.String())

	back, err := dataset.ReadCSV(strings.NewReader(buf.String()), "t", ',')
	require.NoError(t, err)
	assert.Equal(t, d.Names(), back.Names())
	assert.Equal(t, d.Column("n").Floats(), back.Column("n").Floats())

	p := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, d.SaveCSV(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(b))
}
