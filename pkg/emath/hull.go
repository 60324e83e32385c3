package emath

import "sort"

// Point2 is a point in a plane; for geographic use X is longitude and Y latitude.
type Point2 struct {
	X, Y float64
}

func cross(o, a, b Point2) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// ConvexHull returns the vertices of the convex hull of pts, counter
// clockwise, without repeating the first vertex. Points with a
// non-finite coordinate are ignored. Collinear inputs come back as the
// two extreme points. (Andrew's monotone chain.)
func ConvexHull(pts []Point2) []Point2 {
	p := make([]Point2, 0, len(pts))
	for _, pt := range pts {
		if IsFinite(pt.X) && IsFinite(pt.Y) {
			p = append(p, pt)
		}
	}
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})

	// Drop exact duplicates, they confuse the turn test
	uniq := p[:0]
	for i, pt := range p {
		if i == 0 || pt != p[i-1] {
			uniq = append(uniq, pt)
		}
	}
	p = uniq
	if len(p) < 3 {
		return append([]Point2{}, p...)
	}

	hull := make([]Point2, 0, 2*len(p))
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}

	return hull[:len(hull)-1]
}
