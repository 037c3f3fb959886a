package charts

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/KaramelBytes/insighto/internal/apperrors"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/stats"
	"github.com/KaramelBytes/insighto/internal/utils"
)

const (
	maxBars   = 10
	maxGroups = 6
	labelMax  = 18
)

var barColor = color.RGBA{R: 0x5b, G: 0x9b, B: 0xd5, A: 0xff}

// Renderer draws descriptors to PNG files. It holds no drawing state: every
// call builds its own plot and canvas, so one Renderer may serve concurrent
// sessions.
type Renderer struct {
	WidthIn  float64
	HeightIn float64
	DPI      int
}

// NewRenderer returns a renderer for the given figure size; zero values use 10x6 in at 100 DPI.
func NewRenderer(widthIn, heightIn float64, dpi int) *Renderer {
	if widthIn <= 0 {
		widthIn = 10
	}
	if heightIn <= 0 {
		heightIn = 6
	}
	if dpi <= 0 {
		dpi = 100
	}
	return &Renderer{WidthIn: widthIn, HeightIn: heightIn, DPI: dpi}
}

// Render validates d, draws it from ds and writes the image to path. Any
// failure, including a panic inside the plotting code, is returned as a
// RenderFailure. The file at path is only replaced once a complete image is
// encoded, so a failed render leaves whatever was there before.
func (r *Renderer) Render(ds *dataset.Dataset, d Descriptor, path string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			err = apperrors.New(apperrors.RenderFailure, "render."+d.Chart, err)
		}
	}()
	if err := d.Validate(ds); err != nil {
		return err
	}
	p, err := build(ds, d)
	if err != nil {
		return err
	}
	png, err := r.encode(p)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, png)
}

func (r *Renderer) encode(p *plot.Plot) ([]byte, error) {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(r.WidthIn)*vg.Inch, vg.Length(r.HeightIn)*vg.Inch),
		vgimg.UseDPI(r.DPI),
	)
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func build(ds *dataset.Dataset, d Descriptor) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = d.Title
	var err error
	switch d.Chart {
	case Histogram:
		err = histogram(p, ds, d)
	case Bar:
		err = bar(p, ds, d)
	case Box:
		err = box(p, ds, d)
	case Heatmap:
		err = heatmap(p, ds, d)
	case Scatter:
		err = scatter(p, ds, d)
	case Line:
		err = line(p, ds, d)
	default:
		err = fmt.Errorf("unsupported chart kind %q", d.Chart)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

var errNoData = errors.New("no values to plot")

func histogram(p *plot.Plot, ds *dataset.Dataset, d Descriptor) error {
	vals := ds.Column(d.X).Floats()
	if len(vals) == 0 {
		return errNoData
	}
	bins := d.Bins
	if bins == 0 {
		bins = int(math.Ceil(math.Sqrt(float64(len(vals)))))
		bins = min(max(bins, 5), 50)
	}
	h, err := plotter.NewHist(plotter.Values(vals), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.Normalize(1)
	h.FillColor = barColor
	p.Add(h)
	if kde := stats.KDE(vals); kde != nil {
		f := plotter.NewFunction(kde)
		f.Color = color.RGBA{R: 0xc0, G: 0x39, B: 0x2b, A: 0xff}
		f.Width = vg.Points(2)
		f.Samples = 200
		p.Add(f)
	}
	p.X.Label.Text = d.X
	p.Y.Label.Text = "Density"
	return nil
}

func bar(p *plot.Plot, ds *dataset.Dataset, d Descriptor) error {
	x := ds.Column(d.X)
	agg := d.Aggregation
	if d.Y == "" {
		agg = "count"
	} else if agg == "" {
		agg = "mean"
	}
	groups, order := groupRows(x)
	type bucket struct {
		label string
		value float64
	}
	var bars []bucket
	for _, key := range order {
		rows := groups[key]
		if agg == "count" {
			bars = append(bars, bucket{key, float64(len(rows))})
			continue
		}
		vals := pick(ds.Column(d.Y), rows)
		if len(vals) == 0 {
			continue
		}
		bars = append(bars, bucket{key, aggregate(vals, agg)})
	}
	if len(bars) == 0 {
		return errNoData
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].value > bars[j].value })
	if len(bars) > maxBars {
		bars = bars[:maxBars]
	}
	vals := make(plotter.Values, len(bars))
	labels := make([]string, len(bars))
	for i, b := range bars {
		vals[i] = b.value
		labels[i] = shorten(b.label)
	}
	bc, err := plotter.NewBarChart(vals, vg.Points(28))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bc.Color = barColor
	bc.LineStyle.Width = 0
	p.Add(bc)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Label.Text = d.X
	if d.Y == "" {
		p.Y.Label.Text = "Count"
	} else {
		p.Y.Label.Text = fmt.Sprintf("%s of %s", agg, d.Y)
	}
	return nil
}

func box(p *plot.Plot, ds *dataset.Dataset, d Descriptor) error {
	cols := d.Columns
	if len(cols) == 0 {
		cols = []string{d.X}
	}
	var names []string
	var series [][]float64
	if d.GroupBy != "" {
		groups, order := groupRows(ds.Column(d.GroupBy))
		sort.SliceStable(order, func(i, j int) bool { return len(groups[order[i]]) > len(groups[order[j]]) })
		for _, key := range order {
			if len(names) == maxBars {
				break
			}
			if vals := pick(ds.Column(cols[0]), groups[key]); len(vals) > 0 {
				names = append(names, shorten(key))
				series = append(series, vals)
			}
		}
		p.X.Label.Text = d.GroupBy
		p.Y.Label.Text = cols[0]
	} else {
		for _, c := range cols {
			if vals := ds.Column(c).Floats(); len(vals) > 0 {
				names = append(names, shorten(c))
				series = append(series, vals)
			}
		}
	}
	if len(series) == 0 {
		return errNoData
	}
	for i, vals := range series {
		b, err := plotter.NewBoxPlot(vg.Points(30), float64(i), plotter.Values(vals))
		if err != nil {
			return fmt.Errorf("box plot %s: %w", names[i], err)
		}
		b.FillColor = color.RGBA{R: 0xad, G: 0xd8, B: 0xe6, A: 0xff}
		p.Add(b)
	}
	p.NominalX(names...)
	return nil
}

// corrGrid adapts a correlation matrix to plotter.GridXYZ.
type corrGrid [][]float64

func (g corrGrid) Dims() (c, r int)   { return len(g), len(g) }
func (g corrGrid) Z(c, r int) float64 { return g[r][c] }
func (g corrGrid) X(c int) float64    { return float64(c) }
func (g corrGrid) Y(r int) float64    { return float64(r) }

// CorrelationMatrix computes pairwise-complete Pearson coefficients. Undefined
// entries are NaN.
func CorrelationMatrix(ds *dataset.Dataset, cols []string) [][]float64 {
	n := len(cols)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		a := ds.Column(cols[i])
		for j := i; j < n; j++ {
			b := ds.Column(cols[j])
			x := make([]float64, len(a.Cells))
			y := make([]float64, len(a.Cells))
			for k := range a.Cells {
				x[k], y[k] = a.Cells[k].Num, b.Cells[k].Num
			}
			r, ok := stats.Correlation(x, y, func(k int) bool { return a.Cells[k].Valid && b.Cells[k].Valid })
			if !ok {
				r = math.NaN()
			}
			m[i][j], m[j][i] = r, r
		}
	}
	return m
}

func heatmap(p *plot.Plot, ds *dataset.Dataset, d Descriptor) error {
	m := CorrelationMatrix(ds, d.Columns)
	hm := plotter.NewHeatMap(corrGrid(m), palette.Heat(12, 1))
	hm.Min, hm.Max = -1, 1
	hm.NaN = color.Gray{Y: 0xcc}
	p.Add(hm)

	var xys plotter.XYs
	var text []string
	ticks := make([]plot.Tick, len(d.Columns))
	for i, c := range d.Columns {
		ticks[i] = plot.Tick{Value: float64(i), Label: shorten(c)}
		for j := range d.Columns {
			if math.IsNaN(m[j][i]) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(i), Y: float64(j)})
			text = append(text, fmt.Sprintf("%.2f", m[j][i]))
		}
	}
	if len(xys) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
		if err != nil {
			return fmt.Errorf("heatmap labels: %w", err)
		}
		p.Add(labels)
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	return nil
}

func scatter(p *plot.Plot, ds *dataset.Dataset, d Descriptor) error {
	x, y := ds.Column(d.X), ds.Column(d.Y)
	p.X.Label.Text = d.X
	p.Y.Label.Text = d.Y
	if d.GroupBy == "" {
		xys := pairs(x, y, nil)
		if len(xys) == 0 {
			return errNoData
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
		s.GlyphStyle.Color = barColor
		p.Add(s)
		return nil
	}
	groups, order := groupRows(ds.Column(d.GroupBy))
	sort.SliceStable(order, func(i, j int) bool { return len(groups[order[i]]) > len(groups[order[j]]) })
	drawn := 0
	for _, key := range order {
		if drawn == maxGroups {
			break
		}
		xys := pairs(x, y, groups[key])
		if len(xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter %s: %w", key, err)
		}
		s.GlyphStyle.Color = plotutil.Color(drawn)
		s.GlyphStyle.Shape = plotutil.Shape(drawn)
		p.Add(s)
		p.Legend.Add(shorten(key), s)
		drawn++
	}
	if drawn == 0 {
		return errNoData
	}
	return nil
}

func line(p *plot.Plot, ds *dataset.Dataset, d Descriptor) error {
	x, y := ds.Column(d.X), ds.Column(d.Y)
	agg := d.Aggregation
	if agg == "" {
		agg = "mean"
	}
	byX := map[float64][]float64{}
	for i := range x.Cells {
		if !x.Cells[i].Valid || !y.Cells[i].Valid {
			continue
		}
		xv := x.Cells[i].Num
		if x.Kind == dataset.Datetime {
			xv = float64(x.Cells[i].Time.Unix())
		}
		byX[xv] = append(byX[xv], y.Cells[i].Num)
	}
	if len(byX) == 0 {
		return errNoData
	}
	xys := make(plotter.XYs, 0, len(byX))
	for xv, vals := range byX {
		xys = append(xys, plotter.XY{X: xv, Y: aggregate(vals, agg)})
	}
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })
	l, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	l.Color = barColor
	l.Width = vg.Points(2)
	p.Add(l)
	if x.Kind == dataset.Datetime {
		p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	}
	p.X.Label.Text = d.X
	p.Y.Label.Text = fmt.Sprintf("%s of %s", agg, d.Y)
	return nil
}

// groupRows indexes row numbers by the formatted value of c, in first-seen order.
func groupRows(c *dataset.Column) (map[string][]int, []string) {
	groups := map[string][]int{}
	var order []string
	for i, cell := range c.Cells {
		if !cell.Valid {
			continue
		}
		k := c.Format(i, "")
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	return groups, order
}

func pick(c *dataset.Column, rows []int) []float64 {
	var out []float64
	for _, i := range rows {
		if c.Cells[i].Valid {
			out = append(out, c.Cells[i].Num)
		}
	}
	return out
}

func pairs(x, y *dataset.Column, rows []int) plotter.XYs {
	var out plotter.XYs
	add := func(i int) {
		if x.Cells[i].Valid && y.Cells[i].Valid {
			out = append(out, plotter.XY{X: x.Cells[i].Num, Y: y.Cells[i].Num})
		}
	}
	if rows == nil {
		for i := range x.Cells {
			add(i)
		}
		return out
	}
	for _, i := range rows {
		add(i)
	}
	return out
}

func aggregate(vals []float64, how string) float64 {
	switch how {
	case "count":
		return float64(len(vals))
	case "sum":
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s
	case "median":
		m, _ := stats.Median(vals)
		return m
	case "min":
		m, _ := stats.Quantile(stats.Sorted(vals), 0)
		return m
	case "max":
		m, _ := stats.Quantile(stats.Sorted(vals), 1)
		return m
	default:
		m, _ := stats.Mean(vals)
		return m
	}
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= labelMax {
		return s
	}
	return string(r[:labelMax-1]) + "…"
}
