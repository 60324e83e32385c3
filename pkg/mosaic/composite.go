package mosaic

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/mdouchement/hdr/hdrcolor"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/mango-mosaic/pkg/emath"
)

// A Mosaic is the composite of all sites for one requested time. It
// implements image.Image and hdr.Image, with north at the top; NaN
// cells render as black.
type Mosaic struct {
	Grid   *GeoGrid
	Time   time.Time       // the requested time
	Values emath.FloatGrid // Cols x Rows, row 0 at LatMin; NaN where no site has data
	Source []int           // per cell, index of the site whose value was used; -1 for none

	Sites     []Site
	SiteTimes []time.Time // actual frame time per site; zero if the site was absent
	SiteErrs  []error     // why a site was absent
}

func newMosaic(g *GeoGrid, t time.Time, sites []Site) *Mosaic {
	m := Mosaic{
		Grid:      g,
		Time:      t,
		Values:    emath.NewNaNGrid(g.Cols, g.Rows),
		Source:    make([]int, g.NumCells()),
		Sites:     sites,
		SiteTimes: make([]time.Time, len(sites)),
		SiteErrs:  make([]error, len(sites)),
	}
	for i := range m.Source {
		m.Source[i] = -1
	}
	return &m
}

// Implement image.Image
func (m *Mosaic) ColorModel() color.Model { return hdrcolor.RGBModel }
func (m *Mosaic) Bounds() image.Rectangle { return image.Rect(0, 0, m.Grid.Cols, m.Grid.Rows) }
func (m *Mosaic) At(x, y int) color.Color { return m.HDRAt(x, y) }

// Implement hdr.Image
func (m *Mosaic) HDRAt(x, y int) hdrcolor.Color {
	v := m.Value(x, y)
	if math.IsNaN(v) {
		v = 0
	}
	return hdrcolor.RGB{R: v, G: v, B: v}
}
func (m *Mosaic) Size() int { return m.Grid.NumCells() }

// Value is the composite value at image position (x,y), where y=0 is the northernmost row.
func (m *Mosaic) Value(x, y int) float64 { return m.Values.Get(x, m.Grid.Rows-1-y) }

// Present says whether site i contributed a frame to this mosaic.
func (m *Mosaic) Present(i int) bool { return !m.SiteTimes[i].IsZero() }

// SiteTimeString is the actual frame time for site i as HH:MM:SS, or "" if it was absent.
func (m *Mosaic) SiteTimeString(i int) string {
	if !m.Present(i) {
		return ""
	}
	return m.SiteTimes[i].UTC().Format("15:04:05")
}

func (m *Mosaic) String() string {
	n := 0
	for i := range m.Sites {
		if m.Present(i) {
			n++
		}
	}
	return fmt.Sprintf("Mosaic[%s, %d/%d sites, %d/%d cells filled]",
		m.Time.UTC().Format(time.RFC3339), n, len(m.Sites), m.Values.CountFinite(), m.Values.Len())
}

type CompositeOptions struct {
	Workers      int           // sites processed at once; <= 0 means one per site
	FetchTimeout time.Duration // per site image fetch; 0 means none
	Tolerance    time.Duration // max gap between requested and actual frame time; 0 means any
	Fill         FillFunc      // nil means FillByNearest
}

// Composite builds the mosaic for time t. Each site is fetched,
// footprinted and regridded independently; a site that fails for any
// reason is recorded as absent, and never stops the others. The only
// error returned is for a call that can't be made sense of at all, or
// a cancelled context.
func Composite(ctx context.Context, t time.Time, g *GeoGrid, h *Hierarchy, sites []Site, src ImageSource, cache *FootprintCache, opts CompositeOptions) (*Mosaic, error) {
	if h.NumSites != len(sites) || h.Rows != g.Rows || h.Cols != g.Cols {
		return nil, fmt.Errorf("Composite: %s does not match %d sites on %s", h, len(sites), g)
	}
	fill := opts.Fill
	if fill == nil {
		fill = FillByNearest
	}

	m := newMosaic(g, t, sites)
	layers := make([]emath.FloatGrid, len(sites))

	// Each worker only writes its own site's slots, so no locking is needed
	var eg errgroup.Group
	if opts.Workers > 0 {
		eg.SetLimit(opts.Workers)
	}
	for i := range sites {
		i := i
		eg.Go(func() error {
			layer, actual, err := regridSite(ctx, t, g, sites[i], src, cache, opts)
			if err != nil {
				m.SiteErrs[i] = err
				Logf("[Compositor] %s absent: %v", sites[i].Name, err)
				return nil
			}
			layers[i] = layer
			m.SiteTimes[i] = actual
			return nil
		})
	}
	eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fill(h, layers, m)

	Logf("[Compositor] %s, values %s", m, m.Values.Stats())
	return m, nil
}

// regridSite is the per-site pipeline: fetch, footprint, regrid.
func regridSite(ctx context.Context, t time.Time, g *GeoGrid, site Site, src ImageSource, cache *FootprintCache, opts CompositeOptions) (emath.FloatGrid, time.Time, error) {
	fetchCtx := ctx
	if opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, opts.FetchTimeout)
		defer cancel()
	}

	img, err := src.Image(fetchCtx, site, t)
	if err != nil {
		return emath.FloatGrid{}, time.Time{}, err
	}
	if gap := img.Time.Sub(t).Abs(); opts.Tolerance > 0 && gap > opts.Tolerance {
		return emath.FloatGrid{}, time.Time{}, &DataUnavailableError{site.Name, t,
			fmt.Sprintf("nearest frame %s is %s away (tolerance %s)", img.Time.UTC().Format(time.RFC3339), gap, opts.Tolerance)}
	}

	fm, err := cache.Get(ctx, site, g, img)
	if err != nil {
		return emath.FloatGrid{}, time.Time{}, err
	}

	layer, err := fm.Regrid(img)
	if err != nil {
		return emath.FloatGrid{}, time.Time{}, err
	}
	return layer, img.Time, nil
}
