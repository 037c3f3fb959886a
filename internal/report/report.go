// Package report assembles the analysis results into a typed report with a
// fixed section order.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KaramelBytes/insighto/internal/charts"
	"github.com/KaramelBytes/insighto/internal/cleaner"
	"github.com/KaramelBytes/insighto/internal/profile"
)

// TimeLayout is the second-precision format of GeneratedAt.
const TimeLayout = "2006-01-02 15:04:05"

// Section ids, in report order.
const (
	IDDatasetOverview  = "dataset_overview"
	IDDataQuality      = "data_quality"
	IDStatistics       = "statistics"
	IDVisualizations   = "visualizations"
	IDInsights         = "insights"
	IDExecutiveSummary = "executive_summary"
	IDRecommendations  = "recommendations"
)

// Order lists every section id in the order sections appear.
var Order = []string{
	IDDatasetOverview, IDDataQuality, IDStatistics, IDVisualizations,
	IDInsights, IDExecutiveSummary, IDRecommendations,
}

// Section is a titled block of content.
type Section[T any] struct {
	Title   string `json:"title"`
	Content T      `json:"content"`
}

type Overview struct {
	Filename           string  `json:"filename"`
	TotalRows          int     `json:"total_rows"`
	TotalColumns       int     `json:"total_columns"`
	NumericColumns     int     `json:"numeric_columns"`
	CategoricalColumns int     `json:"categorical_columns"`
	DatetimeColumns    int     `json:"datetime_columns"`
	QualityScore       float64 `json:"quality_score"`
	Completeness       float64 `json:"completeness"`
}

type Quality struct {
	OriginalRows       int      `json:"original_rows"`
	OriginalCols       int      `json:"original_cols"`
	CleanedRows        int      `json:"cleaned_rows"`
	CleanedCols        int      `json:"cleaned_cols"`
	CleaningOperations []string `json:"cleaning_operations"`
}

type Statistics struct {
	NumericVariables     map[string]profile.NumericStats     `json:"numeric_variables"`
	CategoricalVariables map[string]profile.CategoricalStats `json:"categorical_variables"`
}

type Visualizations struct {
	TotalCharts int           `json:"total_charts"`
	Charts      []charts.Spec `json:"charts"`
}

// Sections is serialized in field order, which is the report order.
type Sections struct {
	DatasetOverview  *Section[Overview]       `json:"dataset_overview,omitempty"`
	DataQuality      *Section[Quality]        `json:"data_quality,omitempty"`
	Statistics       *Section[Statistics]     `json:"statistics,omitempty"`
	Visualizations   *Section[Visualizations] `json:"visualizations,omitempty"`
	Insights         *Section[string]         `json:"insights,omitempty"`
	ExecutiveSummary *Section[string]         `json:"executive_summary,omitempty"`
	Recommendations  *Section[string]         `json:"recommendations,omitempty"`
}

// Report is the final artifact of a run.
type Report struct {
	SessionID   string   `json:"session_id"`
	Filename    string   `json:"filename"`
	GeneratedAt string   `json:"generated_at"`
	Sections    Sections `json:"sections"`
}

// IDs returns the ids of the sections present, in report order.
func (r *Report) IDs() []string {
	s := r.Sections
	present := map[string]bool{
		IDDatasetOverview:  s.DatasetOverview != nil,
		IDDataQuality:      s.DataQuality != nil,
		IDStatistics:       s.Statistics != nil,
		IDVisualizations:   s.Visualizations != nil,
		IDInsights:         s.Insights != nil,
		IDExecutiveSummary: s.ExecutiveSummary != nil,
		IDRecommendations:  s.Recommendations != nil,
	}
	out := make([]string, 0, len(Order))
	for _, id := range Order {
		if present[id] {
			out = append(out, id)
		}
	}
	return out
}

// Marshal encodes the report as indented JSON.
func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Parse decodes a report produced by Marshal.
func Parse(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// Builder composes a Report. Each Add method replaces its section, so calling
// one twice with the same input leaves the report unchanged.
type Builder struct {
	sessionID string
	filename  string
	now       func() time.Time
	sections  Sections
}

// NewBuilder starts a report for a session.
func NewBuilder(sessionID, filename string) *Builder {
	return &Builder{sessionID: sessionID, filename: filename, now: time.Now}
}

// WithClock overrides the time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) AddDatasetOverview(p *profile.Profile) *Builder {
	b.sections.DatasetOverview = &Section[Overview]{
		Title: "Dataset Overview",
		Content: Overview{
			Filename:           b.filename,
			TotalRows:          p.BasicInfo.TotalRows,
			TotalColumns:       p.BasicInfo.TotalColumns,
			NumericColumns:     len(p.ColumnTypes.Numeric),
			CategoricalColumns: len(p.ColumnTypes.Categorical),
			DatetimeColumns:    len(p.ColumnTypes.Datetime),
			QualityScore:       p.DataQuality.OverallQualityScore,
			Completeness:       p.DataQuality.CompletenessScore,
		},
	}
	return b
}

func (b *Builder) AddDataQuality(r *cleaner.Report) *Builder {
	ops := append([]string{}, r.Entries...)
	b.sections.DataQuality = &Section[Quality]{
		Title: "Data Quality & Cleaning",
		Content: Quality{
			OriginalRows:       r.Summary.OriginalRows,
			OriginalCols:       r.Summary.OriginalCols,
			CleanedRows:        r.Summary.CleanedRows,
			CleanedCols:        r.Summary.CleanedCols,
			CleaningOperations: ops,
		},
	}
	return b
}

func (b *Builder) AddStatistics(p *profile.Profile) *Builder {
	num := make(map[string]profile.NumericStats, len(p.NumericStats))
	for k, v := range p.NumericStats {
		num[k] = v
	}
	cat := make(map[string]profile.CategoricalStats, len(p.CategoricalStats))
	for k, v := range p.CategoricalStats {
		cat[k] = v
	}
	b.sections.Statistics = &Section[Statistics]{
		Title:   "Key Statistics",
		Content: Statistics{NumericVariables: num, CategoricalVariables: cat},
	}
	return b
}

func (b *Builder) AddVisualizations(specs []charts.Spec) *Builder {
	b.sections.Visualizations = visualizations(specs)
	return b
}

// SetCharts replaces the chart list of a built report, as done when a custom
// chart is added after the run.
func (r *Report) SetCharts(specs []charts.Spec) {
	r.Sections.Visualizations = visualizations(specs)
}

func visualizations(specs []charts.Spec) *Section[Visualizations] {
	list := append([]charts.Spec{}, specs...)
	return &Section[Visualizations]{
		Title:   "Visualizations",
		Content: Visualizations{TotalCharts: len(list), Charts: list},
	}
}

func (b *Builder) AddInsights(text string) *Builder {
	b.sections.Insights = &Section[string]{Title: "AI-Generated Insights", Content: text}
	return b
}

func (b *Builder) AddExecutiveSummary(text string) *Builder {
	b.sections.ExecutiveSummary = &Section[string]{Title: "Executive Summary", Content: text}
	return b
}

func (b *Builder) AddRecommendations(text string) *Builder {
	b.sections.Recommendations = &Section[string]{Title: "Recommendations", Content: text}
	return b
}

// Build stamps the report with the current UTC time, truncated to seconds.
func (b *Builder) Build() *Report {
	return &Report{
		SessionID:   b.sessionID,
		Filename:    b.filename,
		GeneratedAt: b.now().UTC().Format(TimeLayout),
		Sections:    b.sections,
	}
}
