package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/insighto/internal/utils"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, utils.EstimateTokens(c.in), c.in)
	}
}

func TestClipTokens(t *testing.T) {
	short := "col_a: 1\ncol_b: 2"
	assert.Equal(t, short, utils.ClipTokens(short, 100))

	long := strings.Repeat("mean: 12.5\n", 200)
	clipped := utils.ClipTokens(long, 30)
	assert.True(t, strings.HasSuffix(clipped, utils.TruncationMarker))
	body := strings.TrimSuffix(clipped, utils.TruncationMarker)
	assert.LessOrEqual(t, utils.EstimateTokens(body), 30)
	assert.True(t, strings.HasSuffix(body, "12.5"), "cut lands on a line boundary")

	oneLine := strings.Repeat("x", 400)
	assert.Equal(t, strings.Repeat("x", 40)+utils.TruncationMarker, utils.ClipTokens(oneLine, 10))
	assert.Equal(t, "[truncated]", utils.ClipTokens(oneLine, 0))
}

func TestSafeFileStem(t *testing.T) {
	assert.Equal(t, "Unit_Price", utils.SafeFileStem("Unit Price"))
	assert.Equal(t, "a_b", utils.SafeFileStem("../a/b"))
	assert.Equal(t, "col", utils.SafeFileStem("   "))
	assert.Equal(t, "col", utils.SafeFileStem("%%%"))
	assert.Len(t, utils.SafeFileStem(strings.Repeat("x", 200)), 64)
}
