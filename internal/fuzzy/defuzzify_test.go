package fuzzy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Category
	}{
		{0, Poor},
		{20, Poor},
		{40, Poor},
		{40.0001, NeedsImprovement},
		{60, NeedsImprovement},
		{60.5, Satisfactory},
		{80, Satisfactory},
		{80.01, Good},
		{85, Good},
		{94.99, Good},
		{95, Excellent},
		{0.3 * 95 / 0.3, Excellent},
		{100, Excellent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryForScore(tt.score), "score %g", tt.score)
	}
}

func TestCategoryNames(t *testing.T) {
	assert.Equal(t, "Needs Improvement", NeedsImprovement.String())
	assert.Equal(t, 1, Poor.Rank())
	assert.Equal(t, 5, Excellent.Rank())
	assert.False(t, Category(0).Valid())

	for _, s := range []string{"good", " GOOD ", "Baik"} {
		c, err := ParseCategory(s)
		require.NoError(t, err)
		assert.Equal(t, Good, c)
	}
	c, err := ParseCategory("perlu perbaikan")
	require.NoError(t, err)
	assert.Equal(t, NeedsImprovement, c)

	_, err = ParseCategory("average")
	assert.Error(t, err)
}

func TestDefuzzifyStrict(t *testing.T) {
	tests := []struct {
		name string
		in   map[Category]float64
		want Category
	}{
		{
			name: "highest surviving membership wins",
			in:   map[Category]float64{Poor: 0.35, Satisfactory: 0.4},
			want: Satisfactory,
		},
		{
			name: "excellent below its threshold is ignored",
			in:   map[Category]float64{Good: 0.5, Excellent: 0.5},
			want: Good,
		},
		{
			name: "tie goes to the lower rank",
			in:   map[Category]float64{NeedsImprovement: 0.6, Good: 0.6},
			want: NeedsImprovement,
		},
		{
			name: "no survivor falls back to max",
			in:   map[Category]float64{Satisfactory: 0.3, Good: 0.2},
			want: Satisfactory,
		},
		{
			name: "fallback tie is deterministic",
			in:   map[Category]float64{Poor: 0.1, Excellent: 0.1},
			want: Poor,
		},
		{
			name: "threshold is inclusive",
			in:   map[Category]float64{NeedsImprovement: 0.2, Excellent: 0.69},
			want: NeedsImprovement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefuzzifyStrict(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("all zero", func(t *testing.T) {
		_, err := DefuzzifyStrict(map[Category]float64{Poor: 0, Good: 0})
		assert.True(t, errors.Is(err, ErrNoActiveRule))

		_, err = DefuzzifyStrict(nil)
		assert.True(t, errors.Is(err, ErrNoActiveRule))
	})
}

func TestDefuzzifyMax(t *testing.T) {
	c, err := DefuzzifyMax(map[Category]float64{Good: 0.4, Excellent: 0.9})
	require.NoError(t, err)
	assert.Equal(t, Excellent, c)

	_, err = DefuzzifyMax(map[Category]float64{})
	assert.ErrorIs(t, err, ErrNoActiveRule)
}

func TestDefuzzifyWith(t *testing.T) {
	res := InferValues(2.15, 68, 0.82, 78, 85)

	c, score, err := DefuzzifyWith(Tsukamoto, &res)
	require.NoError(t, err)
	assert.Equal(t, Satisfactory, c)
	assert.InDelta(t, 76.0, score, eps)

	// Neither consequent reaches its threshold; max membership decides.
	c, score, err = DefuzzifyWith(Strict, &res)
	require.NoError(t, err)
	assert.Equal(t, Satisfactory, c)
	assert.InDelta(t, 76.0, score, eps)

	none := InferValues(4.0, 10, 0.95, 90, 95)
	_, _, err = DefuzzifyWith(Strict, &none)
	assert.ErrorIs(t, err, ErrNoActiveRule)
	_, _, err = DefuzzifyWith(Tsukamoto, &none)
	assert.ErrorIs(t, err, ErrNoActiveRule)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Tsukamoto, m)

	m, err = ParseMethod("STRICT")
	require.NoError(t, err)
	assert.Equal(t, Strict, m)

	_, err = ParseMethod("centroid")
	assert.Error(t, err)
}
