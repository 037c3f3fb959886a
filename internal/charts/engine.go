// Package charts selects, describes and renders the charts of an analysis run.
package charts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insighto/internal/apperrors"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/profile"
	"github.com/KaramelBytes/insighto/internal/utils"
)

// Spec kinds.
const (
	KindBasic  = "basic"
	KindCustom = "custom"
)

// Spec describes one rendered chart and where it came from.
type Spec struct {
	Kind         string `json:"type"`
	Title        string `json:"title"`
	Filename     string `json:"filename"`
	Path         string `json:"filepath"`
	Description  string `json:"description"`
	Instructions string `json:"instructions,omitempty"`
}

// customPrefix starts the file name of every on-demand chart.
const customPrefix = "custom_"

// OnDemand reports whether s came from a custom request rather than an
// automatic run.
func (s Spec) OnDemand() bool {
	return s.Kind == KindCustom && strings.HasPrefix(s.Filename, customPrefix)
}

// Instructor asks the narrative capability for a chart descriptor. It returns
// ok=false when the capability has nothing to offer.
type Instructor interface {
	ChartInstructions(ctx context.Context, prompt string, columns []string, hint string) (string, bool)
}

var (
	// ErrNoInstructions means the narrative capability returned no descriptor.
	ErrNoInstructions = errors.New("no chart instructions available")
	// ErrUnknownColumn is returned for a custom request naming a missing column.
	ErrUnknownColumn = errors.New("unknown column")
)

// DefaultMaxCharts caps the automatic run.
const DefaultMaxCharts = 5

// Engine runs the chart selection policy.
type Engine struct {
	renderer  *Renderer
	instr     Instructor
	maxCharts int
}

// NewEngine builds an engine. instr may be nil, in which case only the
// built-in charts are produced.
func NewEngine(r *Renderer, instr Instructor, maxCharts int) *Engine {
	if r == nil {
		r = NewRenderer(0, 0, 0)
	}
	if maxCharts <= 0 {
		maxCharts = DefaultMaxCharts
	}
	return &Engine{renderer: r, instr: instr, maxCharts: maxCharts}
}

type generatedSlot struct {
	role    string
	title   string
	hint    string
	context string
	allowed map[string]bool
}

// Generate produces up to the chart cap for ds into outDir. Slots are tried in
// order and a slot counts only once its file is written. Failures are logged
// and skipped; Generate never fails the run.
func (e *Engine) Generate(ctx context.Context, ds *dataset.Dataset, prof *profile.Profile, outDir string) []Spec {
	log := zerolog.Ctx(ctx)
	numeric := prof.ColumnTypes.Numeric
	categorical := prof.ColumnTypes.Categorical

	var out []Spec
	room := func() bool { return len(out) < e.maxCharts }
	keep := func(s Spec, err error) {
		if err != nil {
			log.Warn().Err(err).Str("kind", apperrors.KindOf(err).String()).Msg("chart slot skipped")
			return
		}
		log.Debug().Str("chart", s.Filename).Msg("chart rendered")
		out = append(out, s)
	}

	if len(numeric) >= 2 && room() {
		keep(e.generated(ctx, ds, outDir, numeric, generatedSlot{
			role:    "correlation_heatmap",
			title:   "Correlation Heatmap",
			hint:    "Correlation Heatmap",
			context: fmt.Sprintf("Numeric columns: %s", strings.Join(numeric, ", ")),
			allowed: map[string]bool{Heatmap: true},
		}))
	}
	if len(numeric) >= 1 && room() {
		col := numeric[0]
		title := "Distribution of " + col
		keep(e.builtin(ds, outDir, "hist_"+utils.SafeFileStem(col), Descriptor{Chart: Histogram, X: col, Title: title}))
	}
	if len(categorical) >= 1 && room() {
		col := categorical[0]
		title := "Top categories in " + col
		keep(e.builtin(ds, outDir, "bar_"+utils.SafeFileStem(col), Descriptor{Chart: Bar, X: col, Title: title}))
	}
	if len(numeric) >= 1 && room() {
		cols := numeric[:min(5, len(numeric))]
		keep(e.builtin(ds, outDir, "boxplot_comparison", Descriptor{Chart: Box, Columns: cols, Title: "Box Plot Distribution"}))
	}
	if len(numeric) >= 2 && room() {
		keep(e.generated(ctx, ds, outDir, numeric, generatedSlot{
			role:    "ai_relationship_plot",
			title:   "Key Relationship Analysis",
			hint:    "Scatter Plot or Line Chart",
			context: fmt.Sprintf("Find an interesting relationship between these columns: %s.", strings.Join(numeric, ", ")),
			allowed: map[string]bool{Scatter: true, Line: true},
		}))
	}
	return out
}

func (e *Engine) builtin(ds *dataset.Dataset, outDir, stem string, d Descriptor) (Spec, error) {
	filename := stem + ".png"
	path := filepath.Join(outDir, filename)
	if err := e.renderer.Render(ds, d, path); err != nil {
		return Spec{}, err
	}
	return Spec{
		Kind:         KindBasic,
		Title:        d.Title,
		Filename:     filename,
		Path:         path,
		Description:  d.Title,
		Instructions: d.Marshal(),
	}, nil
}

func (e *Engine) generated(ctx context.Context, ds *dataset.Dataset, outDir string, columns []string, slot generatedSlot) (Spec, error) {
	d, raw, err := e.ask(ctx, slot.context, columns, slot.hint)
	if err != nil {
		return Spec{}, err
	}
	if !slot.allowed[d.Chart] {
		return Spec{}, apperrors.Newf(apperrors.RenderFailure, "charts."+slot.role, "chart kind %q not allowed here", d.Chart)
	}
	if d.Chart == Heatmap && len(d.Columns) == 0 {
		d.Columns = columns[:min(10, len(columns))]
	}
	if d.Title == "" {
		d.Title = slot.title
	}
	filename := slot.role + ".png"
	path := filepath.Join(outDir, filename)
	if err := e.renderer.Render(ds, d, path); err != nil {
		return Spec{}, err
	}
	return Spec{
		Kind:         KindCustom,
		Title:        d.Title,
		Filename:     filename,
		Path:         path,
		Description:  "AI generated chart: " + d.Title,
		Instructions: raw,
	}, nil
}

// ask requests and parses a descriptor. The returned error is tagged
// CapabilityUnavailable when nothing came back and RenderFailure when the
// instructions could not be parsed.
func (e *Engine) ask(ctx context.Context, ctxText string, columns []string, hint string) (Descriptor, string, error) {
	if e.instr == nil {
		return Descriptor{}, "", apperrors.New(apperrors.CapabilityUnavailable, "charts.instructions", ErrNoInstructions)
	}
	raw, ok := e.instr.ChartInstructions(ctx, ctxText, columns, hint)
	if !ok {
		return Descriptor{}, "", apperrors.New(apperrors.CapabilityUnavailable, "charts.instructions", ErrNoInstructions)
	}
	d, err := ParseDescriptor(raw)
	if err != nil {
		return Descriptor{}, raw, apperrors.New(apperrors.RenderFailure, "charts.parse", err)
	}
	return d, raw, nil
}

// CustomRequest is a user-initiated chart.
type CustomRequest struct {
	Column  string `json:"column"`
	Column2 string `json:"column2,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Custom renders an on-demand chart. A descriptor is requested from the
// narrative capability first; when none is usable the request itself is
// turned into a descriptor.
func (e *Engine) Custom(ctx context.Context, ds *dataset.Dataset, outDir string, req CustomRequest) (Spec, error) {
	log := zerolog.Ctx(ctx)
	if ds.Column(req.Column) == nil {
		return Spec{}, fmt.Errorf("%w %q", ErrUnknownColumn, req.Column)
	}
	if req.Column2 != "" && ds.Column(req.Column2) == nil {
		return Spec{}, fmt.Errorf("%w %q", ErrUnknownColumn, req.Column2)
	}
	hint := strings.TrimSpace(req.Type)
	if hint == "" {
		hint = "Auto"
	}
	cols := []string{req.Column}
	if req.Column2 != "" {
		cols = append(cols, req.Column2)
	}
	title := fmt.Sprintf("%s of %s", hint, strings.Join(cols, ", "))
	filename := fmt.Sprintf("%s%s_%s.png", customPrefix, utils.SafeFileStem(req.Column), utils.SafeFileStem(hint))
	path := filepath.Join(outDir, filename)

	spec := Spec{Kind: KindCustom, Title: title, Filename: filename, Path: path, Description: "AI generated chart: " + title}
	d, raw, err := e.ask(ctx, "Columns available: "+strings.Join(ds.Names(), ", "), cols, hint)
	if err == nil {
		if d.Title == "" {
			d.Title = title
		}
		if err = e.renderer.Render(ds, d, path); err == nil {
			spec.Instructions = raw
			return spec, nil
		}
	}
	log.Warn().Err(err).Str("chart", filename).Msg("generated custom chart unusable, using direct descriptor")

	d = directDescriptor(ds, req, hint)
	d.Title = title
	if err := e.renderer.Render(ds, d, path); err != nil {
		return Spec{}, err
	}
	spec.Description = title
	spec.Instructions = d.Marshal()
	return spec, nil
}

// directDescriptor maps a chart-type hint onto the whitelisted kinds.
func directDescriptor(ds *dataset.Dataset, req CustomRequest, hint string) Descriptor {
	h := strings.ToLower(hint)
	x := ds.Column(req.Column)
	numeric := func(c *dataset.Column) bool { return c != nil && c.Kind == dataset.Numeric }
	var y *dataset.Column
	if req.Column2 != "" {
		y = ds.Column(req.Column2)
	}
	switch {
	case strings.Contains(h, "heat") || strings.Contains(h, "corr"):
		if numeric(x) && numeric(y) {
			return Descriptor{Chart: Heatmap, Columns: []string{req.Column, req.Column2}}
		}
	case strings.Contains(h, "hist") || strings.Contains(h, "dist"):
		if numeric(x) {
			return Descriptor{Chart: Histogram, X: req.Column}
		}
	case strings.Contains(h, "box"):
		if numeric(x) {
			if y != nil && !numeric(y) {
				return Descriptor{Chart: Box, X: req.Column, GroupBy: req.Column2}
			}
			cols := []string{req.Column}
			if numeric(y) {
				cols = append(cols, req.Column2)
			}
			return Descriptor{Chart: Box, Columns: cols}
		}
	case strings.Contains(h, "line") || strings.Contains(h, "trend"):
		if x.Kind != dataset.Text && numeric(y) {
			return Descriptor{Chart: Line, X: req.Column, Y: req.Column2}
		}
	case strings.Contains(h, "scatter"):
		if numeric(x) && numeric(y) {
			return Descriptor{Chart: Scatter, X: req.Column, Y: req.Column2}
		}
	case strings.Contains(h, "bar") || strings.Contains(h, "count"):
		if numeric(y) {
			return Descriptor{Chart: Bar, X: req.Column, Y: req.Column2, Aggregation: "mean"}
		}
		return Descriptor{Chart: Bar, X: req.Column}
	}
	switch {
	case numeric(x) && numeric(y):
		return Descriptor{Chart: Scatter, X: req.Column, Y: req.Column2}
	case numeric(x):
		return Descriptor{Chart: Histogram, X: req.Column}
	case numeric(y):
		return Descriptor{Chart: Bar, X: req.Column, Y: req.Column2, Aggregation: "mean"}
	default:
		return Descriptor{Chart: Bar, X: req.Column}
	}
}
