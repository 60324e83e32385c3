package mosaic

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/mango-mosaic/pkg/emath"
)

// Two sites on the same meridian, 500km apart. Each camera sees a
// 12x10 degree box around itself, and the boxes overlap in lat [37.5,43].
var (
	siteA = Site{Name: "alpha", Code: "al", Lat: 38, Lon: 250}
	siteB = Site{Name: "bravo", Code: "br", Lat: 38 + 500/(EarthRadiusKm*math.Pi/180), Lon: -110}

	camA = rect{lon0: 244, lat0: 33, step: 0.5, nx: 25, ny: 21, border: 1}   // lat [33,43]
	camB = rect{lon0: 244, lat0: 37.5, step: 0.5, nx: 25, ny: 21, border: 1} // lat [37.5,47.5]
)

func twoSiteFixture(t *testing.T) (*GeoGrid, *Hierarchy, []Site, *fakeSource) {
	t.Helper()
	require.InDelta(t, 500.0, Haversine(siteA.Lat, siteA.Lon360(), siteB.Lat, siteB.Lon360()), 1e-6)

	g := coarseGrid(t)
	sites := []Site{siteA, siteB}
	src := newFakeSource()
	src.images[siteA.Name] = camA.image(t0.Add(time.Minute), uniform(1))
	src.images[siteB.Name] = camB.image(t0.Add(-2*time.Minute), uniform(2))
	return g, BuildHierarchy(g, sites), sites, src
}

func inBox(lat, lon, lat0, lat1 float64) bool {
	return lat >= lat0 && lat <= lat1 && lon >= 244 && lon <= 256
}

func TestComposite_TwoSites(t *testing.T) {
	g, h, sites, src := twoSiteFixture(t)

	m, err := Composite(context.Background(), t0, g, h, sites, src, NewFootprintCache(nil, 0), CompositeOptions{Tolerance: 5 * time.Minute})
	require.NoError(t, err)

	assert.Equal(t, t0.Add(time.Minute), m.SiteTimes[0])
	assert.Equal(t, t0.Add(-2*time.Minute), m.SiteTimes[1])
	assert.Equal(t, "06:01:00", m.SiteTimeString(0))
	assert.Nil(t, m.SiteErrs[0])
	assert.Nil(t, m.SiteErrs[1])

	nA, nB, nOverlap := 0, 0, 0
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			lat, lon := g.Lats[r], g.Lons[c]
			inA, inB := inBox(lat, lon, 33, 43), inBox(lat, lon, 37.5, 47.5)
			v, s := m.Values.Get(c, r), m.Source[r*g.Cols+c]

			switch {
			case inA && inB:
				nOverlap++
				dA := Haversine(siteA.Lat, siteA.Lon360(), lat, lon)
				dB := Haversine(siteB.Lat, siteB.Lon360(), lat, lon)
				if dA <= dB {
					assert.Equal(t, 1.0, v, "overlap lat=%g lon=%g", lat, lon)
					assert.Equal(t, 0, s)
				} else {
					assert.Equal(t, 2.0, v, "overlap lat=%g lon=%g", lat, lon)
					assert.Equal(t, 1, s)
				}
			case inA:
				nA++
				assert.Equal(t, 1.0, v, "lat=%g lon=%g", lat, lon)
				assert.Equal(t, 0, s)
			case inB:
				nB++
				assert.Equal(t, 2.0, v, "lat=%g lon=%g", lat, lon)
				assert.Equal(t, 1, s)
			default:
				assert.True(t, math.IsNaN(v), "lat=%g lon=%g", lat, lon)
				assert.Equal(t, -1, s)
			}
		}
	}
	assert.Equal(t, 13*5, nA)       // lat 33..37
	assert.Equal(t, 13*4, nB)       // lat 44..47
	assert.Equal(t, 13*6, nOverlap) // lat 38..43
}

func TestComposite_Idempotent(t *testing.T) {
	g, h, sites, src := twoSiteFixture(t)
	fc := NewFootprintCache(nil, 0)
	opts := CompositeOptions{Workers: 1}

	m1, err := Composite(context.Background(), t0, g, h, sites, src, fc, opts)
	require.NoError(t, err)
	m2, err := Composite(context.Background(), t0, g, h, sites, src, fc, opts)
	require.NoError(t, err)
	m3, err := Composite(context.Background(), t0, g, h, sites, src, NewFootprintCache(nil, 0), CompositeOptions{Workers: 8})
	require.NoError(t, err)

	for _, m := range []*Mosaic{m2, m3} {
		assert.Empty(t, cmp.Diff(m1.Values.Values(), m.Values.Values(), cmpopts.EquateNaNs()))
		assert.Equal(t, m1.Source, m.Source)
		assert.Equal(t, m1.SiteTimes, m.SiteTimes)
	}
}

func TestComposite_NearestSiteWithDataWins(t *testing.T) {
	g, h, sites, src := twoSiteFixture(t)

	// A's pixels have positions but no values over lat [37.5,40.5], where A is the nearer site
	src.images[siteA.Name] = camA.image(t0, func(x, y int) float64 {
		if y >= 9 && y <= 15 {
			return math.NaN()
		}
		return 1
	})

	m, err := Composite(context.Background(), t0, g, h, sites, src, NewFootprintCache(nil, 0), CompositeOptions{})
	require.NoError(t, err)

	for _, lat := range []float64{38, 39, 40} {
		c, r, ok := g.CellAt(250, lat)
		require.True(t, ok)
		require.Equal(t, 0, h.At(0, c, r), "alpha should be nearest at lat %g", lat)
		assert.Equal(t, 2.0, m.Values.Get(c, r), "lat %g", lat)
		assert.Equal(t, 1, m.Source[r*g.Cols+c])
	}

	// South of the gap alpha has values again
	c, r, _ := g.CellAt(250, 37)
	assert.Equal(t, 1.0, m.Values.Get(c, r))
}

func TestComposite_AbsentSite(t *testing.T) {
	tests := map[string]struct {
		setup func(src *fakeSource)
		kind  error
	}{
		"no local data": {
			setup: func(src *fakeSource) { src.errs[siteB.Name] = &DataUnavailableError{siteB.Name, t0, "no file"} },
			kind:  ErrDataUnavailable,
		},
		"download failed": {
			setup: func(src *fakeSource) {
				src.errs[siteB.Name] = &DownloadError{siteB.Name, "http://example/x.mga", errors.New("503")}
			},
			kind: ErrDownload,
		},
		"too far from requested time": {
			setup: func(src *fakeSource) {
				src.images[siteB.Name] = camB.image(t0.Add(10*time.Minute), uniform(2))
			},
			kind: ErrDataUnavailable,
		},
		"bad geometry": {
			setup: func(src *fakeSource) {
				src.images[siteB.Name] = rect{lon0: 250, lat0: 42, step: 1, nx: 2, ny: 1}.image(t0, uniform(2))
			},
			kind: ErrGeometry,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			g, h, sites, src := twoSiteFixture(t)
			tc.setup(src)

			m, err := Composite(context.Background(), t0, g, h, sites, src, NewFootprintCache(nil, 0), CompositeOptions{Tolerance: 5 * time.Minute})
			require.NoError(t, err)

			assert.True(t, m.Present(0))
			assert.False(t, m.Present(1))
			assert.True(t, m.SiteTimes[1].IsZero())
			assert.Equal(t, "", m.SiteTimeString(1))
			assert.True(t, errors.Is(m.SiteErrs[1], tc.kind), "got %v", m.SiteErrs[1])

			// alpha fills its whole box, including what bravo would have won
			for r := 0; r < g.Rows; r++ {
				for c := 0; c < g.Cols; c++ {
					if inBox(g.Lats[r], g.Lons[c], 33, 43) {
						assert.Equal(t, 1.0, m.Values.Get(c, r))
					} else {
						assert.True(t, math.IsNaN(m.Values.Get(c, r)))
					}
				}
			}
		})
	}
}

func TestComposite_MismatchedHierarchy(t *testing.T) {
	g, h, _, src := twoSiteFixture(t)
	_, err := Composite(context.Background(), t0, g, h, []Site{siteA}, src, NewFootprintCache(nil, 0), CompositeOptions{})
	assert.Error(t, err)
}

func TestComposite_Cancelled(t *testing.T) {
	g, h, sites, src := twoSiteFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Composite(ctx, t0, g, h, sites, src, NewFootprintCache(nil, 0), CompositeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFillers(t *testing.T) {
	g := coarseGrid(t)
	sites := []Site{siteA, siteB}
	h := BuildHierarchy(g, sites)
	cA, rA, _ := g.CellAt(250, 38) // alpha is nearest
	cB, rB, _ := g.CellAt(250, 43) // bravo is nearest

	layerA := emath.NewNaNGrid(g.Cols, g.Rows)
	layerB := emath.NewNaNGrid(g.Cols, g.Rows)
	layerA.Set(cA, rA, 10)
	layerB.Set(cA, rA, 20)
	layerB.Set(cB, rB, 30)

	m := newMosaic(g, t0, sites)
	FillByNearest(h, []emath.FloatGrid{layerA, layerB}, m)
	assert.Equal(t, 10.0, m.Values.Get(cA, rA))
	assert.Equal(t, 30.0, m.Values.Get(cB, rB))
	assert.Equal(t, 2, m.Values.CountFinite())

	m = newMosaic(g, t0, sites)
	FillByMean(h, []emath.FloatGrid{layerA, layerB}, m)
	assert.Equal(t, 15.0, m.Values.Get(cA, rA))
	assert.Equal(t, 0, m.Source[rA*g.Cols+cA])
	assert.Equal(t, 30.0, m.Values.Get(cB, rB))

	// An absent site has an empty layer
	m = newMosaic(g, t0, sites)
	FillByNearest(h, []emath.FloatGrid{{}, layerB}, m)
	assert.Equal(t, 20.0, m.Values.Get(cA, rA))

	_, err := GetFiller("bogus")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestMosaic_Image(t *testing.T) {
	g, h, sites, src := twoSiteFixture(t)
	m, err := Composite(context.Background(), t0, g, h, sites, src, NewFootprintCache(nil, 0), CompositeOptions{})
	require.NoError(t, err)

	assert.Equal(t, g.Cols, m.Bounds().Dx())
	assert.Equal(t, g.Rows, m.Bounds().Dy())
	assert.Equal(t, g.NumCells(), m.Size())

	// Image row 0 is the northernmost grid row
	c, r, _ := g.CellAt(250, 46)
	y := g.Rows - 1 - r
	assert.Equal(t, 2.0, m.Value(c, y))
	R, G, B, _ := m.HDRAt(c, y).HDRRGBA()
	assert.Equal(t, []float64{2, 2, 2}, []float64{R, G, B})

	R, _, _, _ = m.HDRAt(0, 0).HDRRGBA()
	assert.Equal(t, 0.0, R, "NaN cells are black")
}
