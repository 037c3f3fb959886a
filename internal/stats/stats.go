// Package stats implements the descriptive statistics shared by the cleaner,
// the profiler and the chart renderer.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Sorted returns a sorted copy of vals.
func Sorted(vals []float64) []float64 {
	out := append([]float64(nil), vals...)
	sort.Float64s(out)
	return out
}

// Quantile returns the q-quantile of sorted values using linear interpolation
// between closest ranks. ok is false for an empty input.
func Quantile(sorted []float64, q float64) (float64, bool) {
	if len(sorted) == 0 {
		return 0, false
	}
	if q <= 0 {
		return sorted[0], true
	}
	if q >= 1 {
		return sorted[len(sorted)-1], true
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo], true
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w, true
}

// Median of unsorted values.
func Median(vals []float64) (float64, bool) {
	return Quantile(Sorted(vals), 0.5)
}

// Mean of vals; ok is false for an empty input.
func Mean(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	return stat.Mean(vals, nil), true
}

// StdDev is the sample (n-1) standard deviation; ok is false below two values.
func StdDev(vals []float64) (float64, bool) {
	if len(vals) < 2 {
		return 0, false
	}
	return stat.StdDev(vals, nil), true
}

// Bounds are the IQR fences of a numeric column.
type Bounds struct {
	Q1, Q3       float64
	Lower, Upper float64
}

// IQRBounds computes Q1-k*IQR and Q3+k*IQR.
func IQRBounds(vals []float64, k float64) (Bounds, bool) {
	s := Sorted(vals)
	q1, ok := Quantile(s, 0.25)
	if !ok {
		return Bounds{}, false
	}
	q3, _ := Quantile(s, 0.75)
	iqr := q3 - q1
	return Bounds{Q1: q1, Q3: q3, Lower: q1 - k*iqr, Upper: q3 + k*iqr}, true
}

// Outside counts the values strictly outside b.
func (b Bounds) Outside(vals []float64) int {
	n := 0
	for _, v := range vals {
		if v < b.Lower || v > b.Upper {
			n++
		}
	}
	return n
}

// ModeFloat returns the most frequent value, resolving ties to the smallest.
func ModeFloat(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	counts := make(map[float64]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	best, bestN := 0.0, 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, true
}

// ModeString returns the most frequent string, resolving ties lexically.
func ModeString(vals []string) (string, bool) {
	if len(vals) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best, true
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string
	Count int
}

// Counts returns the frequency table ordered by count desc, then first appearance.
func Counts(vals []string) []ValueCount {
	idx := make(map[string]int, len(vals))
	var out []ValueCount
	for _, v := range vals {
		if i, ok := idx[v]; ok {
			out[i].Count++
			continue
		}
		idx[v] = len(out)
		out = append(out, ValueCount{Value: v, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Correlation is the Pearson coefficient over pairs where both values are
// present. ok is false with fewer than two pairs or zero variance.
func Correlation(x, y []float64, present func(i int) bool) (float64, bool) {
	var xs, ys []float64
	for i := range x {
		if present == nil || present(i) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	if len(xs) < 2 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// KDE returns a Gaussian kernel density estimate of vals using Silverman's
// rule for the bandwidth. It returns nil when the data has no spread.
func KDE(vals []float64) func(float64) float64 {
	n := float64(len(vals))
	sd, ok := StdDev(vals)
	if !ok || sd == 0 {
		return nil
	}
	b, _ := IQRBounds(vals, 0)
	spread := sd
	if iqr := (b.Q3 - b.Q1) / 1.34; iqr > 0 && iqr < spread {
		spread = iqr
	}
	h := 0.9 * spread * math.Pow(n, -0.2)
	norm := 1 / (n * h * math.Sqrt(2*math.Pi))
	data := append([]float64(nil), vals...)
	return func(x float64) float64 {
		sum := 0.0
		for _, v := range data {
			u := (x - v) / h
			sum += math.Exp(-0.5 * u * u)
		}
		return sum * norm
	}
}
