package profile

import (
	"fmt"
	"strings"
)

// SummaryText is the short human-readable block used as narrative context.
func (p *Profile) SummaryText() string {
	var b strings.Builder
	b.WriteString("Dataset Profile Summary:\n")
	fmt.Fprintf(&b, "- Total Rows: %s\n", thousands(p.BasicInfo.TotalRows))
	fmt.Fprintf(&b, "- Total Columns: %d\n", p.BasicInfo.TotalColumns)
	fmt.Fprintf(&b, "- Numeric Columns: %d\n", len(p.ColumnTypes.Numeric))
	fmt.Fprintf(&b, "- Categorical Columns: %d\n", len(p.ColumnTypes.Categorical))
	if n := len(p.ColumnTypes.Datetime); n > 0 {
		fmt.Fprintf(&b, "- Datetime Columns: %d\n", n)
	}
	fmt.Fprintf(&b, "- Data Quality Score: %.1f/100\n", p.DataQuality.OverallQualityScore)
	fmt.Fprintf(&b, "- Completeness: %.1f%%", p.DataQuality.CompletenessScore)
	return b.String()
}

// Markdown renders the profile as a compact document for the terminal.
func (p *Profile) Markdown(name string) string {
	var b strings.Builder
	b.WriteString("# Dataset profile\n\n")
	if name != "" {
		fmt.Fprintf(&b, "File: `%s`\n\n", name)
	}
	fmt.Fprintf(&b, "Rows: %d, Columns: %d, Quality: %.1f/100, Completeness: %.1f%%, Duplicates: %d\n\n",
		p.BasicInfo.TotalRows, p.BasicInfo.TotalColumns, p.DataQuality.OverallQualityScore,
		p.DataQuality.CompletenessScore, p.DataQuality.DuplicateRows)

	if len(p.ColumnTypes.Numeric) > 0 {
		b.WriteString("## Numeric columns\n\n| Column | Count | Mean | Median | Std | Min | Max | Missing |\n|---|---|---|---|---|---|---|---|\n")
		for _, name := range p.ColumnTypes.Numeric {
			s := p.NumericStats[name]
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s | %.1f%% |\n", cellSafe(name), s.Count,
				num(s.Mean), num(s.Median), num(s.Std), num(s.Min), num(s.Max), s.MissingPct)
		}
		b.WriteString("\n")
	}
	if len(p.ColumnTypes.Categorical) > 0 {
		b.WriteString("## Categorical columns\n\n| Column | Unique | Mode | Top values | Missing |\n|---|---|---|---|---|\n")
		for _, name := range p.ColumnTypes.Categorical {
			s := p.CategoricalStats[name]
			top := make([]string, 0, len(s.MostCommon))
			for _, v := range s.MostCommon {
				top = append(top, fmt.Sprintf("%s (%d)", cellSafe(v.Value), v.Count))
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %.1f%% |\n", cellSafe(name), s.UniqueCount, cellSafe(s.Mode),
				strings.Join(top, ", "), s.MissingPct)
		}
		b.WriteString("\n")
	}
	if len(p.ColumnTypes.Datetime) > 0 {
		fmt.Fprintf(&b, "## Datetime columns\n\n%s\n\n", strings.Join(p.ColumnTypes.Datetime, ", "))
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(&b, "> warning: %s\n", w)
	}
	return b.String()
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", *v)
}

func cellSafe(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/")
}

func thousands(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
