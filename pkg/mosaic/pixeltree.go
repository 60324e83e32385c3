package mosaic

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// A pixelPoint is a valid source pixel at (lon,lat), remembering its
// flattened index in the source image. Distances are squared euclidean
// in degrees, i.e. in the plate carree projection the grid lives in.
type pixelPoint struct {
	Lon, Lat float64
	Index    int
}

func (p pixelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(pixelPoint)
	switch d {
	case 0:
		return p.Lon - q.Lon
	case 1:
		return p.Lat - q.Lat
	default:
		panic("pixelPoint: illegal dimension")
	}
}

func (p pixelPoint) Dims() int { return 2 }

func (p pixelPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(pixelPoint)
	dLon, dLat := p.Lon-q.Lon, p.Lat-q.Lat
	return dLon*dLon + dLat*dLat
}

// pixelPoints implements kdtree.Interface.
type pixelPoints []pixelPoint

func (p pixelPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p pixelPoints) Len() int                              { return len(p) }
func (p pixelPoints) Pivot(d kdtree.Dim) int                { return pixelPlane{pixelPoints: p, Dim: d}.Pivot() }
func (p pixelPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// pixelPlane is required to help pixelPoints.
type pixelPlane struct {
	kdtree.Dim
	pixelPoints
}

// Less orders by the plane's coordinate, then by source index, so the
// order is total and the tree comes out the same every time.
func (p pixelPlane) Less(i, j int) bool {
	a, b := p.pixelPoints[i], p.pixelPoints[j]
	var ca, cb float64
	switch p.Dim {
	case 0:
		ca, cb = a.Lon, b.Lon
	case 1:
		ca, cb = a.Lat, b.Lat
	default:
		panic("pixelPlane: illegal dimension")
	}
	if ca != cb {
		return ca < cb
	}
	return a.Index < b.Index
}
func (p pixelPlane) Len() int { return len(p.pixelPoints) }

// Pivot sorts the plane and splits it at the middle, so every build of
// the same points gives the same tree.
func (p pixelPlane) Pivot() int {
	sort.Sort(p)
	return p.Len() / 2
}
func (p pixelPlane) Slice(start, end int) kdtree.SortSlicer {
	p.pixelPoints = p.pixelPoints[start:end]
	return p
}
func (p pixelPlane) Swap(i, j int) {
	p.pixelPoints[i], p.pixelPoints[j] = p.pixelPoints[j], p.pixelPoints[i]
}

// newPixelTree builds the search tree. The tree reorders its input, so it gets a copy.
func newPixelTree(pts []pixelPoint) *kdtree.Tree {
	cp := make(pixelPoints, len(pts))
	copy(cp, pts)
	return kdtree.New(cp, false)
}

// nearestPixel returns the source index of the valid pixel closest to
// (lon,lat). When several pixels are equally close, the lowest source
// index wins.
func nearestPixel(t *kdtree.Tree, lon, lat float64) int {
	q := pixelPoint{Lon: lon, Lat: lat}
	c, best := t.Nearest(q)
	idx := c.(pixelPoint).Index

	// Gather everything at the same distance; the slack keeps the search
	// from pruning branches that sit exactly on the boundary.
	keep := kdtree.NewDistKeeper(best + 1e-9*(best+1))
	t.NearestSet(keep, q)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil || cd.Dist != best {
			continue
		}
		if i := cd.Comparable.(pixelPoint).Index; i < idx {
			idx = i
		}
	}
	return idx
}
