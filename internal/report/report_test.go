package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insighto/internal/charts"
	"github.com/KaramelBytes/insighto/internal/cleaner"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/profile"
	"github.com/KaramelBytes/insighto/internal/report"
)

func fixtures(t *testing.T) (*profile.Profile, *cleaner.Report, []charts.Spec) {
	t.Helper()
	ds := dataset.FromRecords("sales.csv", []string{"region", "units"}, [][]string{
		{"North", "1"}, {"South", "2"}, {"North", "3"}, {"East", ""},
	})
	prof, err := profile.Build(ds)
	require.NoError(t, err)
	rep := &cleaner.Report{
		Entries: []string{"Standardized column names", "Removed 0 duplicate rows"},
		Summary: cleaner.Summary{OriginalRows: 4, OriginalCols: 2, CleanedRows: 4, CleanedCols: 2},
	}
	specs := []charts.Spec{{Kind: charts.KindBasic, Title: "Distribution of units", Filename: "hist_units.png", Path: "/s/charts/hist_units.png", Description: "Distribution of units"}}
	return prof, rep, specs
}

var fixed = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 999, time.FixedZone("X", 3600)) }

func TestSectionOrderIgnoresCallOrder(t *testing.T) {
	prof, rep, specs := fixtures(t)
	r := report.NewBuilder("sid", "sales.csv").WithClock(fixed).
		AddRecommendations("recs").
		AddVisualizations(specs).
		AddInsights("ins").
		AddDatasetOverview(prof).
		AddExecutiveSummary("sum").
		AddStatistics(prof).
		AddDataQuality(rep).
		Build()

	assert.Equal(t, report.Order, r.IDs())
	assert.Equal(t, "2025-03-04 04:06:07", r.GeneratedAt)

	data, err := r.Marshal()
	require.NoError(t, err)
	last := -1
	for _, id := range report.Order {
		i := strings.Index(string(data), `"`+id+`"`)
		require.Greater(t, i, last, id)
		last = i
	}
}

func TestAddIsIdempotent(t *testing.T) {
	prof, rep, specs := fixtures(t)
	once := report.NewBuilder("sid", "sales.csv").WithClock(fixed).
		AddDatasetOverview(prof).AddDataQuality(rep).AddVisualizations(specs).Build()
	twice := report.NewBuilder("sid", "sales.csv").WithClock(fixed).
		AddDatasetOverview(prof).AddDataQuality(rep).AddVisualizations(specs).
		AddVisualizations(specs).AddDataQuality(rep).AddDatasetOverview(prof).Build()
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("repeated adds changed the report (-once +twice):\n%s", diff)
	}
	assert.Equal(t, []string{report.IDDatasetOverview, report.IDDataQuality, report.IDVisualizations}, once.IDs())
}

func TestRoundTrip(t *testing.T) {
	prof, rep, specs := fixtures(t)
	r := report.NewBuilder("sid", "sales.csv").
		AddDatasetOverview(prof).AddDataQuality(rep).AddStatistics(prof).AddVisualizations(specs).
		AddInsights("### 1. Key Observations\n- a").AddExecutiveSummary("sum").AddRecommendations("recs").
		Build()
	data, err := r.Marshal()
	require.NoError(t, err)
	back, err := report.Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(r, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = report.Parse([]byte("{"))
	assert.Error(t, err)
}

func TestOverviewContent(t *testing.T) {
	prof, _, _ := fixtures(t)
	r := report.NewBuilder("sid", "sales.csv").AddDatasetOverview(prof).Build()
	c := r.Sections.DatasetOverview.Content
	assert.Equal(t, "Dataset Overview", r.Sections.DatasetOverview.Title)
	assert.Equal(t, "sales.csv", c.Filename)
	assert.Equal(t, 4, c.TotalRows)
	assert.Equal(t, 1, c.NumericColumns)
	assert.Equal(t, 1, c.CategoricalColumns)
}

func TestBuilderCopiesInputs(t *testing.T) {
	_, rep, specs := fixtures(t)
	r := report.NewBuilder("sid", "f").AddDataQuality(rep).AddVisualizations(specs).Build()
	rep.Entries[0] = "changed"
	specs[0].Title = "changed"
	assert.Equal(t, "Standardized column names", r.Sections.DataQuality.Content.CleaningOperations[0])
	assert.Equal(t, "Distribution of units", r.Sections.Visualizations.Content.Charts[0].Title)
}

func TestMarkdown(t *testing.T) {
	prof, rep, specs := fixtures(t)
	md := report.NewBuilder("sid", "sales.csv").WithClock(fixed).
		AddDatasetOverview(prof).AddDataQuality(rep).AddStatistics(prof).AddVisualizations(specs).
		AddInsights("insight text").AddExecutiveSummary("summary text").AddRecommendations("recs text").
		Build().Markdown()

	assert.True(t, strings.HasPrefix(md, "# Analysis Report\n"))
	assert.Contains(t, md, "Generated: 2025-03-04 04:06:07 UTC")
	assert.Contains(t, md, "![Distribution of units](/s/charts/hist_units.png)")
	assert.Contains(t, md, "- Removed 0 duplicate rows")
	assert.Less(t, strings.Index(md, "## AI-Generated Insights"), strings.Index(md, "## Executive Summary"))
	assert.Less(t, strings.Index(md, "## Executive Summary"), strings.Index(md, "## Recommendations"))
}

func TestSetCharts(t *testing.T) {
	_, _, specs := fixtures(t)
	r := report.NewBuilder("sid", "f").AddVisualizations(specs).Build()
	extra := append(specs, charts.Spec{Kind: charts.KindCustom, Title: "custom", Filename: "custom_units_Auto.png"})
	r.SetCharts(extra)
	assert.Equal(t, 2, r.Sections.Visualizations.Content.TotalCharts)
	assert.Equal(t, "custom", r.Sections.Visualizations.Content.Charts[1].Title)
}
