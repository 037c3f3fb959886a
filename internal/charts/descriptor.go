package charts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/insighto/internal/dataset"
)

// Chart kinds understood by the renderer.
const (
	Heatmap   = "heatmap"
	Histogram = "histogram"
	Bar       = "bar"
	Box       = "box"
	Scatter   = "scatter"
	Line      = "line"
)

var kinds = map[string]bool{Heatmap: true, Histogram: true, Bar: true, Box: true, Scatter: true, Line: true}

var aggregations = map[string]bool{"": true, "count": true, "sum": true, "mean": true, "median": true, "min": true, "max": true}

// Descriptor is the closed description of a chart. It names columns of the
// dataset and never carries executable content.
type Descriptor struct {
	Chart       string   `json:"chart"`
	X           string   `json:"x,omitempty"`
	Y           string   `json:"y,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Aggregation string   `json:"aggregation,omitempty"`
	GroupBy     string   `json:"group_by,omitempty"`
	Title       string   `json:"title,omitempty"`
	Bins        int      `json:"bins,omitempty"`
}

// ParseDescriptor extracts a JSON descriptor from model output. Markdown code
// fences and text around the outermost object are ignored.
func ParseDescriptor(text string) (Descriptor, error) {
	var d Descriptor
	s := strings.TrimSpace(text)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return d, errors.New("no JSON object in chart instructions")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &d); err != nil {
		return d, fmt.Errorf("decode chart descriptor: %w", err)
	}
	d.Chart = strings.ToLower(strings.TrimSpace(d.Chart))
	d.Aggregation = strings.ToLower(strings.TrimSpace(d.Aggregation))
	return d, nil
}

// Validate checks the descriptor against the dataset columns and kinds.
func (d Descriptor) Validate(ds *dataset.Dataset) error {
	if !kinds[d.Chart] {
		return fmt.Errorf("unsupported chart kind %q", d.Chart)
	}
	if !aggregations[d.Aggregation] {
		return fmt.Errorf("unsupported aggregation %q", d.Aggregation)
	}
	if d.Bins < 0 || d.Bins > 200 {
		return fmt.Errorf("bins out of range: %d", d.Bins)
	}
	need := func(name string, numeric bool) error {
		if name == "" {
			return errors.New("missing column")
		}
		c := ds.Column(name)
		if c == nil {
			return fmt.Errorf("unknown column %q", name)
		}
		if numeric && c.Kind != dataset.Numeric {
			return fmt.Errorf("column %q is not numeric", name)
		}
		return nil
	}
	optional := func(name string) error {
		if name == "" {
			return nil
		}
		return need(name, false)
	}
	switch d.Chart {
	case Heatmap:
		if len(d.Columns) < 2 {
			return errors.New("heatmap needs at least two columns")
		}
		for _, c := range d.Columns {
			if err := need(c, true); err != nil {
				return err
			}
		}
	case Histogram:
		return need(d.X, true)
	case Bar:
		if err := need(d.X, false); err != nil {
			return err
		}
		if d.Y != "" {
			return need(d.Y, true)
		}
	case Box:
		cols := d.Columns
		if len(cols) == 0 && d.X != "" {
			cols = []string{d.X}
		}
		if len(cols) == 0 {
			return errors.New("box plot needs at least one column")
		}
		for _, c := range cols {
			if err := need(c, true); err != nil {
				return err
			}
		}
		return optional(d.GroupBy)
	case Scatter:
		if err := need(d.X, true); err != nil {
			return err
		}
		if err := need(d.Y, true); err != nil {
			return err
		}
		return optional(d.GroupBy)
	case Line:
		if err := need(d.X, false); err != nil {
			return err
		}
		if k := ds.Column(d.X).Kind; k == dataset.Text {
			return fmt.Errorf("line x column %q must be numeric or datetime", d.X)
		}
		return need(d.Y, true)
	}
	return nil
}

// Marshal renders the descriptor as compact JSON, the form stored as a chart's
// source instructions.
func (d Descriptor) Marshal() string {
	b, _ := json.Marshal(d)
	return string(b)
}
