package mosaic

import (
	"fmt"
	"math"

	"github.com/abworrall/mango-mosaic/pkg/emath"
)

// A FootprintMap says, for every grid cell inside a site's field of
// view, which source pixel is its nearest geographic match. Cells
// outside the field of view are unmapped (NaN). It only holds indices,
// so one map serves every frame from the site.
type FootprintMap struct {
	Site    string
	Index   emath.FloatGrid // grid-shaped; flattened source pixel index, or NaN
	SrcCols int             // shape of the source image the indices refer to
	SrcRows int
}

func (fm *FootprintMap) String() string {
	return fmt.Sprintf("Footprint[%s, %d/%d cells mapped, src %dx%d]",
		fm.Site, fm.Index.CountFinite(), fm.Index.Len(), fm.SrcCols, fm.SrcRows)
}

// Mapped returns the source pixel index for cell (col,row), if there is one.
func (fm *FootprintMap) Mapped(col, row int) (int, bool) {
	v := fm.Index.Get(col, row)
	if math.IsNaN(v) {
		return 0, false
	}
	return int(v), true
}

// FitsImage reports whether the map was computed for an image of this shape.
func (fm *FootprintMap) FitsImage(img SiteImage) bool {
	return fm.SrcCols == img.Pixels.Dx() && fm.SrcRows == img.Pixels.Dy()
}

// FitsGrid reports whether the map has the grid's shape.
func (fm *FootprintMap) FitsGrid(g *GeoGrid) bool {
	return fm.Index.Dx() == g.Cols && fm.Index.Dy() == g.Rows
}

// indicesInRange checks every mapped index points inside the source image.
func (fm *FootprintMap) indicesInRange() bool {
	n := float64(fm.SrcCols * fm.SrcRows)
	for _, v := range fm.Index.Values() {
		if !math.IsNaN(v) && (v < 0 || v >= n) {
			return false
		}
	}
	return true
}

// Regrid looks up a value for every mapped cell; unmapped cells are NaN.
func (fm *FootprintMap) Regrid(img SiteImage) (emath.FloatGrid, error) {
	if !fm.FitsImage(img) {
		return emath.FloatGrid{}, fmt.Errorf("footprint for %dx%d source applied to %dx%d image",
			fm.SrcCols, fm.SrcRows, img.Pixels.Dx(), img.Pixels.Dy())
	}

	src := img.Pixels.Values()
	idx := fm.Index.Values()
	out := emath.NewNaNGrid(fm.Index.Dx(), fm.Index.Dy())
	vals := out.Values()
	for i, v := range idx {
		if math.IsNaN(v) {
			continue
		}
		j := int(v)
		if j < 0 || j >= len(src) {
			return emath.FloatGrid{}, fmt.Errorf("footprint for %s maps a cell to pixel %d, image has %d", fm.Site, j, len(src))
		}
		vals[i] = src[j]
	}
	return out, nil
}

// MapFootprint works out which grid cells lie inside the site's field
// of view, and the nearest valid source pixel for each of them.
//
// A pixel is valid if its latitude is finite. Longitude isn't part of
// that test; a pixel with a valid latitude but no valid longitude is
// counted and logged, and left out of the geometry, as there is no
// position to work with.
//
// The field of view is approximated by the convex hull of the valid
// pixels. Hull vertices west and east of the site give a longitude
// limit per grid row (by linear interpolation in latitude; rows beyond
// the hull have no limit), and a cell is inside if it lies between the
// two limits of its row.
func MapFootprint(site Site, g *GeoGrid, img SiteImage) (*FootprintMap, error) {
	// A malformed frame is a problem with that frame, not with the site
	if err := img.Validate(); err != nil {
		return nil, &DataUnavailableError{site.Name, img.Time, err.Error()}
	}

	fm := FootprintMap{
		Site:    site.Name,
		Index:   emath.NewNaNGrid(g.Cols, g.Rows),
		SrcCols: img.Pixels.Dx(),
		SrcRows: img.Pixels.Dy(),
	}

	// 1. Flatten, keeping the valid pixels
	lats, lons := img.Lat.Values(), img.Lon.Values()
	pts := make([]pixelPoint, 0, len(lats))
	noLon := 0
	for i, lat := range lats {
		if !emath.IsFinite(lat) {
			continue
		}
		if !emath.IsFinite(lons[i]) {
			noLon++
			continue
		}
		pts = append(pts, pixelPoint{Lon: emath.NormalizeLon360(lons[i]), Lat: lat, Index: i})
	}
	if noLon > 0 {
		Logf("[Footprint] %s: %d pixels have a latitude but no longitude, ignored", site.Name, noLon)
	}
	if len(pts) < 3 {
		return nil, &GeometryError{site.Name, fmt.Sprintf("%d valid pixels, need at least 3 for a hull", len(pts))}
	}

	// 2. The hull approximates the field of view boundary
	hullIn := make([]emath.Point2, len(pts))
	for i, p := range pts {
		hullIn[i] = emath.Point2{X: p.Lon, Y: p.Lat}
	}
	hull := emath.ConvexHull(hullIn)

	// 3. Split the hull either side of the site
	siteLon := site.Lon360()
	var wLat, wLon, eLat, eLon []float64
	for _, v := range hull {
		if v.X < siteLon {
			wLat, wLon = append(wLat, v.Y), append(wLon, v.X)
		} else if v.X > siteLon {
			eLat, eLon = append(eLat, v.Y), append(eLon, v.X)
		}
	}

	// 4. Longitude limits for each grid row
	westLimit := emath.InterpOrNaN(wLat, wLon, g.Lats, math.Min)
	eastLimit := emath.InterpOrNaN(eLat, eLon, g.Lats, math.Max)

	// 5+6. Flag inside cells, and find their nearest pixel
	tree := newPixelTree(pts)
	for r := 0; r < g.Rows; r++ {
		w, e := westLimit[r], eastLimit[r]
		if math.IsNaN(w) || math.IsNaN(e) {
			continue
		}
		for c := 0; c < g.Cols; c++ {
			lon := g.Lons[c]
			if lon >= w && lon <= e {
				fm.Index.Set(c, r, float64(nearestPixel(tree, lon, g.Lats[r])))
			}
		}
	}

	Logf("[Footprint] %s: %d valid pixels, hull of %d vertices (%dW/%dE), %s",
		site.Name, len(pts), len(hull), len(wLat), len(eLat), fm.String())

	return &fm, nil
}
