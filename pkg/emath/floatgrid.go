package emath

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a rectangular grid of float64 values, stored row by
// row. NaN is a legitimate value, meaning "no data here".
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewNaNGrid returns a grid where every cell is NaN.
func NewNaNGrid(w, h int) FloatGrid {
	fg := NewFloatGrid(w, h)
	fg.Fill(math.NaN())
	return fg
}

// NewFloatGridFrom wraps an existing row-major slice; len(values) must be a multiple of w.
func NewFloatGridFrom(w int, values []float64) (FloatGrid, error) {
	if w <= 0 || len(values)%w != 0 {
		return FloatGrid{}, fmt.Errorf("floatgrid: %d values do not fill rows of width %d", len(values), w)
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Len() int                { return len(fg.values) }

// Values exposes the backing slice, row-major. Index i is (i%Dx, i/Dx).
func (fg *FloatGrid) Values() []float64 { return fg.values }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (fg *FloatGrid) Copy() *FloatGrid {
	g2 := FloatGrid{stride: fg.stride, values: make([]float64, len(fg.values))}
	copy(g2.values, fg.values)
	return &g2
}

func (fg *FloatGrid) Fill(v float64) {
	for i := range fg.values {
		fg.values[i] = v
	}
}

// SameShape reports whether both grids have identical dimensions.
func (fg *FloatGrid) SameShape(other *FloatGrid) bool {
	return fg.Dx() == other.Dx() && fg.Dy() == other.Dy()
}

// CountFinite returns how many cells hold a finite value.
func (fg *FloatGrid) CountFinite() int {
	n := 0
	for _, v := range fg.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// FiniteMinMax returns the range of the finite values; ok is false if there are none.
func (fg *FloatGrid) FiniteMinMax() (min, max float64, ok bool) {
	finite := make([]float64, 0, len(fg.values))
	for _, v := range fg.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 0, false
	}
	return floats.Min(finite), floats.Max(finite), true
}

func (fg *FloatGrid) Stats() string {
	min, max, ok := fg.FiniteMinMax()
	if !ok {
		return fmt.Sprintf("fg[%dx%d, no finite vals]", fg.Dx(), fg.Dy())
	}
	return fmt.Sprintf("fg[%dx%d, %d finite, vals{%f,%f}]", fg.Dx(), fg.Dy(), fg.CountFinite(), min, max)
}
