package render

import (
	"fmt"
	"math"

	"github.com/codahale/hdrhistogram"
	"github.com/mdouchement/hdr/tmo"

	"github.com/abworrall/mango-mosaic/pkg/emath"
	"github.com/abworrall/mango-mosaic/pkg/mosaic"
)

var (
	Tonemappers = []string{"linear", "drago03", "reinhard05"}

	// The linear tonemapper stretches this percentile range of the
	// finite values over [0,1]. A few hot pixels (stars, satellites)
	// would otherwise squash everything else into the bottom gray levels.
	LowPercentile  = 1.0
	HighPercentile = 99.5
)

// histogramBuckets is the integer range finite values are scaled into
// before being recorded.
const histogramBuckets = 1000000

// DisplayRange finds the values at the given percentiles (0-100) of
// the finite cells of the mosaic. It returns false if there are none.
func DisplayRange(m *mosaic.Mosaic, lowPct, highPct float64) (lo, hi float64, ok bool) {
	min, max, ok := m.Values.FiniteMinMax()
	if !ok {
		return 0, 0, false
	}
	if max == min {
		return min, min + 1, true
	}

	scale := histogramBuckets / (max - min)
	h := hdrhistogram.New(0, histogramBuckets, 3)
	for _, v := range m.Values.Values() {
		if emath.IsFinite(v) {
			h.RecordValue(int64(math.Round((v - min) * scale)))
		}
	}

	lo = min + float64(h.ValueAtQuantile(lowPct))/scale
	hi = min + float64(h.ValueAtQuantile(highPct))/scale
	if hi <= lo {
		hi = lo + (max-min)/histogramBuckets
	}
	return lo, hi, true
}

// Levels maps the mosaic into [0,1] display levels, in image
// orientation (north at the top). Cells with no data stay NaN.
func Levels(m *mosaic.Mosaic, tonemapper string) (emath.FloatGrid, error) {
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	out := emath.NewNaNGrid(w, h)

	switch tonemapper {
	case "", "linear":
		lo, hi, ok := DisplayRange(m, LowPercentile, HighPercentile)
		if !ok {
			return out, nil
		}
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				if v := m.Value(x, y); !math.IsNaN(v) {
					out.Set(x, y, emath.Clamp01((v-lo)/(hi-lo)))
				}
			}
		}
		return out, nil
	}

	op, err := SetupTonemapper(m, tonemapper)
	if err != nil {
		return out, err
	}
	mosaic.Logf("[Render] tonemapping %s with %s", m.Time.UTC().Format("15:04:05"), tonemapper)
	img := op.Perform()

	b := img.Bounds()
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if math.IsNaN(m.Value(x, y)) {
				continue
			}
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Set(x, y, float64(r)/float64(0xFFFF))
		}
	}
	return out, nil
}

// SetupTonemapper returns an operator from the hdr package, tweaked
// for night sky images: mostly dark, with small bright features that
// the default settings overexpose.
func SetupTonemapper(img *mosaic.Mosaic, name string) (tmo.ToneMappingOperator, error) {
	switch name {
	case "linear":
		return tmo.NewLinear(img), nil

	case "drago03":
		op := tmo.NewDefaultDrago03(img)
		op.Bias = 1.0
		return op, nil

	case "reinhard05":
		op := tmo.NewDefaultReinhard05(img)
		op.Chromatic = 0.005
		op.Light = 0.005
		return op, nil
	}
	return nil, &mosaic.ConfigurationError{Field: "output.tonemapper",
		Reason: fmt.Sprintf("'%s' not recognized, want one of %v", name, Tonemappers)}
}
