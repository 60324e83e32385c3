package emath

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// InterpOrNaN evaluates the piecewise linear curve through (xp[i], fp[i])
// at each of x. Outside [min(xp), max(xp)] the result is NaN, not an
// extrapolation. The knots need not be sorted. When several knots share
// an xp value, pick decides which fp survives (e.g. math.Min).
func InterpOrNaN(xp, fp, x []float64, pick func(a, b float64) float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}

	type knot struct{ x, y float64 }
	knots := make([]knot, 0, len(xp))
	for i := range xp {
		knots = append(knots, knot{xp[i], fp[i]})
	}
	sort.SliceStable(knots, func(i, j int) bool { return knots[i].x < knots[j].x })

	xs, ys := []float64{}, []float64{}
	for _, k := range knots {
		if n := len(xs); n > 0 && xs[n-1] == k.x {
			ys[n-1] = pick(ys[n-1], k.y)
			continue
		}
		xs = append(xs, k.x)
		ys = append(ys, k.y)
	}

	switch len(xs) {
	case 0:
		return out

	case 1:
		// A single knot only defines the curve at that exact point
		for i, v := range x {
			if v == xs[0] {
				out[i] = ys[0]
			}
		}
		return out
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return out
	}
	lo, hi := xs[0], xs[len(xs)-1]
	for i, v := range x {
		if v >= lo && v <= hi {
			out[i] = pl.Predict(v)
		}
	}
	return out
}
