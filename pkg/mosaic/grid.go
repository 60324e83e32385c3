package mosaic

import (
	"fmt"
	"math"

	"github.com/abworrall/mango-mosaic/pkg/emath"
)

// GridBounds defines the target lattice. Ranges are half-open, [min, max).
type GridBounds struct {
	LatMin  float64 `yaml:"latmin" validate:"gte=-90,lte=90"`
	LatMax  float64 `yaml:"latmax" validate:"gte=-90,lte=90"`
	LatStep float64 `yaml:"latstep"`
	LonMin  float64 `yaml:"lonmin" validate:"gte=0,lte=360"`
	LonMax  float64 `yaml:"lonmax" validate:"gte=0,lte=360"`
	LonStep float64 `yaml:"lonstep"`
}

// DefaultGridBounds covers the continental US at roughly the native
// image resolution (lat ~0.025deg, lon ~0.035deg per pixel).
func DefaultGridBounds() GridBounds {
	return GridBounds{
		LatMin: 25.0, LatMax: 55.0, LatStep: 0.02,
		LonMin: 225.0, LonMax: 300.0, LonStep: 0.03,
	}
}

func (b GridBounds) String() string {
	return fmt.Sprintf("lat[%g,%g)/%g lon[%g,%g)/%g", b.LatMin, b.LatMax, b.LatStep, b.LonMin, b.LonMax, b.LonStep)
}

// Validate reports degenerate bounds as a ConfigurationError. Longitudes
// are in [0,360], the same convention pixel longitudes are normalized to.
func (b GridBounds) Validate() error {
	switch {
	case !(b.LatMin >= -90 && b.LatMax <= 90):
		return &ConfigurationError{"grid.latmin", fmt.Sprintf("latitudes must be within [-90,90], got [%g,%g)", b.LatMin, b.LatMax)}
	case !(b.LonMin >= 0 && b.LonMax <= 360):
		return &ConfigurationError{"grid.lonmin", fmt.Sprintf("longitudes must be within [0,360], got [%g,%g)", b.LonMin, b.LonMax)}
	case !(b.LatStep > 0):
		return &ConfigurationError{"grid.latstep", fmt.Sprintf("must be > 0, got %g", b.LatStep)}
	case !(b.LonStep > 0):
		return &ConfigurationError{"grid.lonstep", fmt.Sprintf("must be > 0, got %g", b.LonStep)}
	case !(b.LatMin < b.LatMax):
		return &ConfigurationError{"grid.latmin", fmt.Sprintf("must be < latmax, got [%g,%g)", b.LatMin, b.LatMax)}
	case !(b.LonMin < b.LonMax):
		return &ConfigurationError{"grid.lonmin", fmt.Sprintf("must be < lonmax, got [%g,%g)", b.LonMin, b.LonMax)}
	}
	return nil
}

// arangeLen matches the length of numpy.arange(min, max, step); the small
// slack stops (55-25)/0.02 = 1500.0000000002 turning into 1501 cells.
func arangeLen(min, max, step float64) int {
	return int(math.Ceil((max-min)/step - 1e-9))
}

// A GeoGrid is the fixed rectilinear lattice that every site is regridded onto.
// Rows run along latitude, columns along longitude (in [0,360)).
type GeoGrid struct {
	Bounds GridBounds
	Rows   int
	Cols   int

	Lats []float64 // latitude of each row's cell centers, ascending
	Lons []float64 // longitude of each column's cell centers, ascending

	CenterLat emath.FloatGrid // Cols x Rows
	CenterLon emath.FloatGrid
	EdgeLat   emath.FloatGrid // (Cols+1) x (Rows+1); cell (c,r) lies between edges c,c+1 and r,r+1
	EdgeLon   emath.FloatGrid

	Transform emath.Aff3 // (col,row) -> (lon,lat) of the cell center
	inverse   emath.Aff3
}

// BuildGrid constructs the lattice for the given bounds.
func BuildGrid(b GridBounds) (*GeoGrid, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	g := GeoGrid{
		Bounds:    b,
		Rows:      arangeLen(b.LatMin, b.LatMax, b.LatStep),
		Cols:      arangeLen(b.LonMin, b.LonMax, b.LonStep),
		Transform: emath.GridTransform(b.LonMin, b.LonStep, b.LatMin, b.LatStep),
	}

	inv, err := g.Transform.Invert()
	if err != nil {
		return nil, &ConfigurationError{"grid", err.Error()}
	}
	g.inverse = inv
	edges := g.Transform.Translate(-0.5, -0.5)

	g.Lats = make([]float64, g.Rows)
	g.Lons = make([]float64, g.Cols)
	for r := 0; r < g.Rows; r++ {
		_, g.Lats[r] = g.Transform.Apply(0, float64(r))
	}
	for c := 0; c < g.Cols; c++ {
		g.Lons[c], _ = g.Transform.Apply(float64(c), 0)
	}

	// Outer products of the two 1-D ranges
	g.CenterLat = emath.NewFloatGrid(g.Cols, g.Rows)
	g.CenterLon = emath.NewFloatGrid(g.Cols, g.Rows)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			g.CenterLon.Set(c, r, g.Lons[c])
			g.CenterLat.Set(c, r, g.Lats[r])
		}
	}

	g.EdgeLat = emath.NewFloatGrid(g.Cols+1, g.Rows+1)
	g.EdgeLon = emath.NewFloatGrid(g.Cols+1, g.Rows+1)
	for r := 0; r <= g.Rows; r++ {
		for c := 0; c <= g.Cols; c++ {
			lon, lat := edges.Apply(float64(c), float64(r))
			g.EdgeLon.Set(c, r, lon)
			g.EdgeLat.Set(c, r, lat)
		}
	}

	return &g, nil
}

func (g *GeoGrid) String() string {
	return fmt.Sprintf("GeoGrid[%dx%d, %s]", g.Cols, g.Rows, g.Bounds)
}

// NumCells is Rows*Cols.
func (g *GeoGrid) NumCells() int { return g.Rows * g.Cols }

// CellAt returns the cell whose center is nearest to (lon,lat), if it is on the grid.
func (g *GeoGrid) CellAt(lon, lat float64) (col, row int, ok bool) {
	x, y := g.inverse.Apply(emath.NormalizeLon360(lon), lat)
	col, row = int(math.Round(x)), int(math.Round(y))
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return 0, 0, false
	}
	return col, row, true
}
