package emath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatGrid_Basics(t *testing.T) {
	fg := NewNaNGrid(3, 2)
	assert.Equal(t, 3, fg.Dx())
	assert.Equal(t, 2, fg.Dy())
	assert.Equal(t, 0, fg.CountFinite())

	_, _, ok := fg.FiniteMinMax()
	assert.False(t, ok)

	fg.Set(2, 1, 7.5)
	fg.Set(0, 0, -1)
	assert.Equal(t, 7.5, fg.Get(2, 1))
	assert.Equal(t, 7.5, fg.Values()[5])

	min, max, ok := fg.FiniteMinMax()
	require.True(t, ok)
	assert.Equal(t, -1.0, min)
	assert.Equal(t, 7.5, max)

	cp := fg.Copy()
	cp.Set(2, 1, 0)
	assert.Equal(t, 7.5, fg.Get(2, 1), "copy must not alias")
	assert.True(t, fg.SameShape(cp))
}

func TestNewFloatGridFrom(t *testing.T) {
	_, err := NewFloatGridFrom(4, make([]float64, 6))
	assert.Error(t, err)

	fg, err := NewFloatGridFrom(3, []float64{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 4.0, fg.Get(1, 1))
}

func TestAff3_GridTransformRoundTrip(t *testing.T) {
	m := GridTransform(225, 0.5, 25, 0.25)

	lon, lat := m.Apply(4, 8)
	assert.InDelta(t, 227.0, lon, 1e-12)
	assert.InDelta(t, 27.0, lat, 1e-12)

	inv, err := m.Invert()
	require.NoError(t, err)
	x, y := inv.Apply(lon, lat)
	assert.InDelta(t, 4.0, x, 1e-9)
	assert.InDelta(t, 8.0, y, 1e-9)

	_, err = Aff3{0, 0, 1, 0, 0, 1}.Invert()
	assert.Error(t, err)
}

func TestConvexHull(t *testing.T) {
	t.Run("square with interior points", func(t *testing.T) {
		pts := []Point2{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {1, 1}, {0.5, 1.5}, {1, 0}}
		hull := ConvexHull(pts)
		assert.ElementsMatch(t, []Point2{{0, 0}, {2, 0}, {2, 2}, {0, 2}}, hull)
	})

	t.Run("nan points ignored", func(t *testing.T) {
		pts := []Point2{{0, 0}, {1, 0}, {0, 1}, {math.NaN(), 5}, {5, math.NaN()}}
		assert.Len(t, ConvexHull(pts), 3)
	})

	t.Run("collinear", func(t *testing.T) {
		hull := ConvexHull([]Point2{{0, 0}, {1, 1}, {2, 2}, {3, 3}})
		assert.ElementsMatch(t, []Point2{{0, 0}, {3, 3}}, hull)
	})

	t.Run("too few", func(t *testing.T) {
		assert.Len(t, ConvexHull([]Point2{{1, 1}, {1, 1}}), 1)
		assert.Empty(t, ConvexHull(nil))
	})
}

func TestInterpOrNaN(t *testing.T) {
	x := []float64{-1, 0, 0.5, 1, 2, 3}

	out := InterpOrNaN([]float64{2, 0}, []float64{20, 0}, x, math.Min)
	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, 0.0, out[1])
	assert.InDelta(t, 5.0, out[2], 1e-12)
	assert.InDelta(t, 10.0, out[3], 1e-12)
	assert.Equal(t, 20.0, out[4])
	assert.True(t, math.IsNaN(out[5]))

	t.Run("duplicate knots resolved by pick", func(t *testing.T) {
		out := InterpOrNaN([]float64{0, 0, 1}, []float64{5, 3, 3}, []float64{0}, math.Min)
		assert.Equal(t, 3.0, out[0])
		out = InterpOrNaN([]float64{0, 0, 1}, []float64{5, 3, 3}, []float64{0}, math.Max)
		assert.Equal(t, 5.0, out[0])
	})

	t.Run("single knot", func(t *testing.T) {
		out := InterpOrNaN([]float64{1}, []float64{9}, []float64{0, 1, 2}, math.Min)
		assert.True(t, math.IsNaN(out[0]))
		assert.Equal(t, 9.0, out[1])
		assert.True(t, math.IsNaN(out[2]))
	})

	t.Run("no knots", func(t *testing.T) {
		out := InterpOrNaN(nil, nil, []float64{0}, math.Min)
		assert.True(t, math.IsNaN(out[0]))
	})
}

func TestNormalizeLon360(t *testing.T) {
	assert.Equal(t, 250.0, NormalizeLon360(-110))
	assert.Equal(t, 0.0, NormalizeLon360(360))
	assert.Equal(t, 10.0, NormalizeLon360(10))
}
