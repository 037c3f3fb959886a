package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insighto/internal/stats"
)

func TestIQRBoundsFlagsOutlier(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 100}
	b, ok := stats.IQRBounds(vals, 1.5)
	require.True(t, ok)
	assert.InDelta(t, 2.25, b.Q1, 1e-12)
	assert.InDelta(t, 4.75, b.Q3, 1e-12)
	assert.InDelta(t, -1.5, b.Lower, 1e-12)
	assert.InDelta(t, 8.5, b.Upper, 1e-12)
	assert.Equal(t, 1, b.Outside(vals))
}

func TestEmptyInputsAreAbsent(t *testing.T) {
	_, ok := stats.Mean(nil)
	assert.False(t, ok)
	_, ok = stats.Median(nil)
	assert.False(t, ok)
	_, ok = stats.StdDev([]float64{3})
	assert.False(t, ok)
	_, ok = stats.IQRBounds(nil, 1.5)
	assert.False(t, ok)
	_, ok = stats.ModeFloat(nil)
	assert.False(t, ok)
	assert.Nil(t, stats.KDE([]float64{2, 2, 2}))
}

func TestMedianAndStd(t *testing.T) {
	m, ok := stats.Median([]float64{4, 1, 3, 2})
	require.True(t, ok)
	assert.Equal(t, 2.5, m)

	sd, ok := stats.StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.True(t, ok)
	assert.InDelta(t, math.Sqrt(32.0/7.0), sd, 1e-12)
}

func TestModeTiesResolveToSmallest(t *testing.T) {
	v, _ := stats.ModeFloat([]float64{3, 1, 3, 1, 2})
	assert.Equal(t, 1.0, v)
	s, _ := stats.ModeString([]string{"b", "a", "b", "a"})
	assert.Equal(t, "a", s)
}

func TestCountsOrder(t *testing.T) {
	got := stats.Counts([]string{"x", "y", "y", "z", "x", "w"})
	assert.Equal(t, []stats.ValueCount{{"x", 2}, {"y", 2}, {"z", 1}, {"w", 1}}, got)
}

func TestCorrelationPairwise(t *testing.T) {
	x := []float64{1, 2, 3, 4, 99}
	y := []float64{2, 4, 6, 8, -5}
	r, ok := stats.Correlation(x, y, func(i int) bool { return i < 4 })
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-12)

	_, ok = stats.Correlation([]float64{1, 1}, []float64{2, 3}, nil)
	assert.False(t, ok)
}

func TestKDEIntegratesToOne(t *testing.T) {
	f := stats.KDE([]float64{1, 2, 2, 3, 5, 8})
	require.NotNil(t, f)
	sum, step := 0.0, 0.01
	for x := -20.0; x < 30; x += step {
		sum += f(x) * step
	}
	assert.InDelta(t, 1.0, sum, 1e-3)
}
