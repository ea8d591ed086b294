package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// Quad is a quadrilateral with vertices in boundary order.
type Quad [4]r2.Point

// Area returns the unsigned shoelace area.
func (q Quad) Area() float64 {
	return math.Abs(signedArea(q[:]))
}

// Center returns the mean of the vertices.
func (q Quad) Center() r2.Point {
	return q[0].Add(q[1]).Add(q[2]).Add(q[3]).Mul(0.25)
}

// IsConvex reports whether every turn of the boundary has the same non-zero orientation.
func (q Quad) IsConvex() bool {
	sign := 0.0
	for i := 0; i < 4; i++ {
		c := q[(i+1)%4].Sub(q[i]).Cross(q[(i+2)%4].Sub(q[(i+1)%4]))
		if c == 0 || c*sign < 0 {
			return false
		}
		sign = c
	}
	return true
}

// SideLengths returns the length of side i, from vertex i to vertex i+1.
func (q Quad) SideLengths() [4]float64 {
	var out [4]float64
	for i := range out {
		out[i] = q[(i+1)%4].Sub(q[i]).Norm()
	}
	return out
}

func signedArea(pts []r2.Point) float64 {
	a := 0.0
	for i := range pts {
		a += pts[i].Cross(pts[(i+1)%len(pts)])
	}
	return a / 2
}

func triangleArea(a, b, c r2.Point) float64 {
	return math.Abs(b.Sub(a).Cross(c.Sub(a))) / 2
}

// convexHull returns the hull of pts in counter-clockwise order (for y up), without collinear points.
func convexHull(pts []r2.Point) []r2.Point {
	if len(pts) < 3 {
		return append([]r2.Point(nil), pts...)
	}
	sorted := append([]r2.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	hull := make([]r2.Point, 0, 2*len(sorted))
	for pass := 0; pass < 2; pass++ {
		start := len(hull)
		for _, p := range sorted {
			for len(hull) >= start+2 && hull[len(hull)-1].Sub(hull[len(hull)-2]).Cross(p.Sub(hull[len(hull)-2])) <= 0 {
				hull = hull[:len(hull)-1]
			}
			hull = append(hull, p)
		}
		hull = hull[:len(hull)-1]
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	return hull
}

const maxHullVertices = 64

// maxAreaQuad returns the largest quadrilateral with vertices on the hull, in hull order.
func maxAreaQuad(hull []r2.Point) (Quad, bool) {
	n := len(hull)
	if n < 4 {
		return Quad{}, false
	}
	if n > maxHullVertices {
		sub := make([]r2.Point, maxHullVertices)
		for i := range sub {
			sub[i] = hull[i*n/maxHullVertices]
		}
		hull, n = sub, maxHullVertices
	}
	best := -1.0
	var bi, bj, bk, bl int
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			k, areaK := farthest(hull, i, j, i+1, j)
			l, areaL := farthest(hull, i, j, j+1, n+i)
			if areaK+areaL > best {
				best = areaK + areaL
				bi, bj, bk, bl = i, j, k, l%n
			}
		}
	}
	if best <= 0 {
		return Quad{}, false
	}
	return Quad{hull[bi], hull[bk], hull[bj], hull[bl]}, true
}

// farthest returns the vertex in [from, to) maximizing the triangle area with the diagonal i-j.
func farthest(hull []r2.Point, i, j, from, to int) (int, float64) {
	n := len(hull)
	best, bestArea := from, -1.0
	for k := from; k < to; k++ {
		a := triangleArea(hull[i], hull[j], hull[k%n])
		if a > bestArea {
			best, bestArea = k, a
		}
	}
	return best, bestArea
}
