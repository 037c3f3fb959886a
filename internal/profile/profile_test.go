package profile_test

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/profile"
)

func codes(rows, distinct int) *dataset.Dataset {
	recs := make([][]string, rows)
	for i := range recs {
		recs[i] = []string{strconv.Itoa(i % distinct), strconv.Itoa(i)}
	}
	return dataset.FromRecords("codes", []string{"code", "id"}, recs)
}

func TestReclassifiesLowCardinalityNumerics(t *testing.T) {
	ct := profile.Classify(codes(1000, 8))
	assert.Equal(t, []string{"code"}, ct.Categorical)
	assert.Equal(t, []string{"id"}, ct.Numeric)

	ct = profile.Classify(codes(50, 8))
	assert.Equal(t, []string{"code", "id"}, ct.Numeric)
	assert.Empty(t, ct.Categorical)
}

func TestBuildStatsAndQuality(t *testing.T) {
	d := dataset.FromRecords("s.csv", []string{"city", "amount", "day"}, [][]string{
		{"Oslo", "10", "2024-01-01"},
		{"Rome", "20", "2024-01-02"},
		{"Oslo", "30", "2024-01-03"},
		{"", "", "2024-01-04"},
		{"Oslo", "10", "2024-01-01"},
	})
	p, err := profile.Build(d)
	require.NoError(t, err)

	assert.Equal(t, 5, p.BasicInfo.TotalRows)
	assert.Equal(t, 15, p.BasicInfo.TotalCells)
	assert.Equal(t, []string{"amount"}, p.ColumnTypes.Numeric)
	assert.Equal(t, []string{"city"}, p.ColumnTypes.Categorical)
	assert.Equal(t, []string{"day"}, p.ColumnTypes.Datetime)

	a := p.NumericStats["amount"]
	assert.Equal(t, 4, a.Count)
	assert.Equal(t, 17.5, *a.Mean)
	assert.Equal(t, 15.0, *a.Median)
	assert.Equal(t, 10.0, *a.Q25)
	assert.Equal(t, 22.5, *a.Q75)
	assert.Equal(t, 20.0, a.MissingPct)

	c := p.CategoricalStats["city"]
	assert.Equal(t, 2, c.UniqueCount)
	assert.Equal(t, "Oslo", c.Mode)
	assert.Equal(t, []profile.ValueShare{{"Oslo", 3, 60}, {"Rome", 1, 20}}, c.MostCommon)

	q := p.DataQuality
	assert.Equal(t, 2, q.TotalMissingCells)
	assert.Equal(t, 1, q.DuplicateRows)
	assert.InDelta(t, 100-200.0/15, q.CompletenessScore, 1e-9)
	assert.InDelta(t, 0.7*q.CompletenessScore+0.3*80, q.OverallQualityScore, 1e-9)
}

func TestUndefinedStatsAreAbsent(t *testing.T) {
	d := &dataset.Dataset{Name: "x", Columns: []*dataset.Column{
		{Name: "lonely", Kind: dataset.Numeric, Cells: append([]dataset.Cell{{Num: 4, Valid: true}}, make([]dataset.Cell, 9)...)},
	}}
	p, err := profile.Build(d)
	require.NoError(t, err)
	s := p.NumericStats["lonely"]
	assert.Nil(t, s.Std)
	require.NotNil(t, s.Mean)
	assert.Equal(t, 4.0, *s.Mean)

	empty := &dataset.Dataset{Name: "e", Columns: []*dataset.Column{{Name: "n", Kind: dataset.Numeric}}}
	p, err = profile.Build(empty)
	require.NoError(t, err)
	s = p.NumericStats["n"]
	assert.Nil(t, s.Mean)
	assert.Nil(t, s.Min)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mean":null`)
}

func TestSummaryText(t *testing.T) {
	p, err := profile.Build(codes(1200, 8))
	require.NoError(t, err)
	txt := p.SummaryText()
	assert.Contains(t, txt, "- Total Rows: 1,200")
	assert.Contains(t, txt, "- Numeric Columns: 1")
	assert.Contains(t, txt, "- Data Quality Score: 100.0/100")
	assert.Contains(t, p.Markdown("codes.csv"), "| code | 8 |")
}

func TestValidateRejectsOverlap(t *testing.T) {
	p := &profile.Profile{
		BasicInfo:   profile.BasicInfo{ColumnNames: []string{"a"}},
		ColumnTypes: profile.ColumnTypes{Numeric: []string{"a"}, Categorical: []string{"a"}},
	}
	assert.Error(t, p.Validate())
	p.ColumnTypes.Categorical = nil
	assert.NoError(t, p.Validate())
}
