package mosaic

import (
	"fmt"
	"math"

	"github.com/abworrall/mango-mosaic/pkg/emath"
)

// A FillFunc merges the per-site regridded layers into the mosaic's
// Values and Source grids, which start out all NaN / -1. layers is
// indexed like the session's site list; an absent site's layer is
// empty (zero length), and behaves as if it were all NaN.
type FillFunc func(h *Hierarchy, layers []emath.FloatGrid, m *Mosaic)

// FillByNearest is the default: each cell takes the value of the
// nearest site (per the hierarchy) that has a finite value there.
// It walks the rank levels in order, and at each level fills every
// cell that is still NaN from the site ranked at that level. A site
// that doesn't cover the cell contributes NaN, so the cell stays open
// for the next level down.
func FillByNearest(h *Hierarchy, layers []emath.FloatGrid, m *Mosaic) {
	vals := m.Values.Values()
	for level := 0; level < h.NumSites; level++ {
		for r := 0; r < h.Rows; r++ {
			for c := 0; c < h.Cols; c++ {
				i := r*h.Cols + c
				if !math.IsNaN(vals[i]) {
					continue
				}
				s := h.At(level, c, r)
				if layers[s].Len() == 0 {
					continue
				}
				if v := layers[s].Get(c, r); !math.IsNaN(v) {
					vals[i] = v
					m.Source[i] = s
				}
			}
		}
	}
}

// FillByMean averages the finite values from every site at each
// cell. It is a diagnostic; differences from FillByNearest show up
// where neighbouring sites disagree across an overlap. The source
// site recorded is the nearest one that contributed.
func FillByMean(h *Hierarchy, layers []emath.FloatGrid, m *Mosaic) {
	vals := m.Values.Values()
	for r := 0; r < h.Rows; r++ {
		for c := 0; c < h.Cols; c++ {
			i := r*h.Cols + c
			sum, n := 0.0, 0
			for level := 0; level < h.NumSites; level++ {
				s := h.At(level, c, r)
				if layers[s].Len() == 0 {
					continue
				}
				if v := layers[s].Get(c, r); !math.IsNaN(v) {
					if n == 0 {
						m.Source[i] = s
					}
					sum += v
					n++
				}
			}
			if n > 0 {
				vals[i] = sum / float64(n)
			}
		}
	}
}

// FillerNames lists what GetFiller understands.
var FillerNames = []string{"nearest", "mean"}

// GetFiller maps a config name onto a FillFunc.
func GetFiller(name string) (FillFunc, error) {
	switch name {
	case "", "nearest":
		return FillByNearest, nil
	case "mean":
		return FillByMean, nil
	default:
		return nil, &ConfigurationError{"filler", fmt.Sprintf("unknown filler '%s' (want one of %v)", name, FillerNames)}
	}
}
