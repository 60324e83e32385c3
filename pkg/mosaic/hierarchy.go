package mosaic

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean radius of a spherical Earth. Fine at grid
// resolution; this is not an ellipsoidal geodesic.
const EarthRadiusKm = 6371.0

const deg2rad = math.Pi / 180.0

// Haversine returns the great-circle distance in km between (lat0,lon0)
// and (lat,lon), all in degrees. Differences are taken before converting
// to radians, so the result is exactly symmetric.
func Haversine(lat0, lon0, lat, lon float64) float64 {
	dLat := (lat - lat0) * deg2rad
	dLon := (lon - lon0) * deg2rad
	sLat, sLon := math.Sin(dLat/2), math.Sin(dLon/2)

	a := sLat*sLat + math.Cos(lat0*deg2rad)*math.Cos(lat*deg2rad)*sLon*sLon
	a = math.Min(1.0, math.Max(0.0, a)) // rounding can push antipodes just past 1

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// A Hierarchy ranks the sites at every grid cell by increasing distance
// from the site to the cell. Level 0 is the nearest site everywhere.
// Equidistant sites keep their original order.
type Hierarchy struct {
	NumSites int
	Rows     int
	Cols     int

	order []int32 // [level][row][col]
}

// At returns the index (into the session's site list) of the site at rank level for cell (col,row).
func (h *Hierarchy) At(level, col, row int) int {
	return int(h.order[(level*h.Rows+row)*h.Cols+col])
}

// Ranking returns the full ordering of site indices at a cell, nearest first.
func (h *Hierarchy) Ranking(col, row int) []int {
	out := make([]int, h.NumSites)
	for l := 0; l < h.NumSites; l++ {
		out[l] = h.At(l, col, row)
	}
	return out
}

func (h *Hierarchy) String() string {
	return fmt.Sprintf("Hierarchy[%d sites, %dx%d]", h.NumSites, h.Cols, h.Rows)
}

// BuildHierarchy computes, for every cell of the grid, the permutation
// of site indices that sorts the sites by haversine distance. It only
// depends on site positions and grid geometry, so it runs once per session.
func BuildHierarchy(g *GeoGrid, sites []Site) *Hierarchy {
	n := len(sites)
	h := Hierarchy{
		NumSites: n,
		Rows:     g.Rows,
		Cols:     g.Cols,
		order:    make([]int32, n*g.Rows*g.Cols),
	}
	if n == 0 {
		return &h
	}

	// distances[site][row*cols+col]
	distances := make([][]float64, n)
	for s, site := range sites {
		d := make([]float64, g.NumCells())
		lon0 := site.Lon360()
		for r := 0; r < g.Rows; r++ {
			for c := 0; c < g.Cols; c++ {
				d[r*g.Cols+c] = Haversine(site.Lat, lon0, g.Lats[r], g.Lons[c])
			}
		}
		distances[s] = d
	}

	rank := make([]int32, n)
	for cell := 0; cell < g.NumCells(); cell++ {
		// Insertion sort with a strict comparison is stable, and n is small
		for i := range rank {
			rank[i] = int32(i)
		}
		for i := 1; i < n; i++ {
			for j := i; j > 0 && distances[rank[j]][cell] < distances[rank[j-1]][cell]; j-- {
				rank[j], rank[j-1] = rank[j-1], rank[j]
			}
		}
		for l := 0; l < n; l++ {
			h.order[l*g.NumCells()+cell] = rank[l]
		}
	}

	Logf("[Hierarchy] ranked %d sites over %s", n, g)
	return &h
}
