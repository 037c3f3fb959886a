package report

import (
	"fmt"
	"sort"
	"strings"
)

// Markdown renders the report as a single document. Chart images are linked
// by their stored path.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Analysis Report\n\n")
	fmt.Fprintf(&b, "- File: `%s`\n- Session: `%s`\n- Generated: %s UTC\n\n", r.Filename, r.SessionID, r.GeneratedAt)

	s := r.Sections
	if sec := s.DatasetOverview; sec != nil {
		c := sec.Content
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		fmt.Fprintf(&b, "| Rows | Columns | Numeric | Categorical | Datetime | Quality | Completeness |\n|---|---|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %.1f | %.1f%% |\n\n",
			c.TotalRows, c.TotalColumns, c.NumericColumns, c.CategoricalColumns, c.DatetimeColumns, c.QualityScore, c.Completeness)
	}
	if sec := s.DataQuality; sec != nil {
		c := sec.Content
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		fmt.Fprintf(&b, "Rows %d → %d, columns %d → %d.\n\n", c.OriginalRows, c.CleanedRows, c.OriginalCols, c.CleanedCols)
		for _, op := range c.CleaningOperations {
			fmt.Fprintf(&b, "- %s\n", op)
		}
		b.WriteString("\n")
	}
	if sec := s.Statistics; sec != nil {
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		if len(sec.Content.NumericVariables) > 0 {
			b.WriteString("| Variable | Mean | Median | Std | Min | Max | Missing |\n|---|---|---|---|---|---|---|\n")
			for _, name := range sortedKeys(sec.Content.NumericVariables) {
				v := sec.Content.NumericVariables[name]
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %.1f%% |\n",
					name, fmtPtr(v.Mean), fmtPtr(v.Median), fmtPtr(v.Std), fmtPtr(v.Min), fmtPtr(v.Max), v.MissingPct)
			}
			b.WriteString("\n")
		}
		if len(sec.Content.CategoricalVariables) > 0 {
			b.WriteString("| Variable | Unique | Mode | Missing |\n|---|---|---|---|\n")
			for _, name := range sortedKeys(sec.Content.CategoricalVariables) {
				v := sec.Content.CategoricalVariables[name]
				fmt.Fprintf(&b, "| %s | %d | %s | %.1f%% |\n", name, v.UniqueCount, v.Mode, v.MissingPct)
			}
			b.WriteString("\n")
		}
	}
	if sec := s.Visualizations; sec != nil {
		fmt.Fprintf(&b, "## %s\n\n%d chart(s)\n\n", sec.Title, sec.Content.TotalCharts)
		for _, c := range sec.Content.Charts {
			fmt.Fprintf(&b, "### %s\n\n![%s](%s)\n\n%s\n\n", c.Title, c.Title, c.Path, c.Description)
		}
	}
	for _, sec := range []*Section[string]{s.Insights, s.ExecutiveSummary, s.Recommendations} {
		if sec != nil {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", sec.Title, strings.TrimSpace(sec.Content))
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", *v)
}
