package chessboard

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// maxGridDeviation is how far, in cells, a corner may map from its integer grid position.
const maxGridDeviation = 0.3

// OrderGrid sorts unordered inner corners into row-major order. The origin is the outer corner with
// the smallest x+y. Rows run along the hull edge from the origin that holds pattern.Cols corners;
// when both edges qualify the more horizontal one wins. Every corner must land on a distinct grid cell.
func OrderGrid(pts []r2.Point, pattern Pattern) ([]r2.Point, error) {
	if len(pts) != pattern.Count() {
		return nil, utils.NewDetectionFailure("have %d corners, need %d", len(pts), pattern.Count())
	}
	outer, ok := maxAreaQuad(convexHull(pts))
	if !ok {
		return nil, utils.NewDetectionFailure("corners do not span a grid")
	}
	origin := 0
	for i := 1; i < 4; i++ {
		if outer[i].X+outer[i].Y < outer[origin].X+outer[origin].Y {
			origin = i
		}
	}
	o, next, opposite, prev := outer[origin], outer[(origin+1)%4], outer[(origin+2)%4], outer[(origin+3)%4]

	alongNext, errNext := assignGrid(pts, pattern, o, next, opposite, prev)
	alongPrev, errPrev := assignGrid(pts, pattern, o, prev, opposite, next)
	switch {
	case errNext == nil && errPrev == nil:
		if horizontality(next.Sub(o)) >= horizontality(prev.Sub(o)) {
			return alongNext, nil
		}
		return alongPrev, nil
	case errNext == nil:
		return alongNext, nil
	case errPrev == nil:
		return alongPrev, nil
	default:
		return nil, errNext
	}
}

func horizontality(d r2.Point) float64 {
	return math.Abs(d.X) / (d.Norm() + 1e-12)
}

// assignGrid maps the corners to grid coordinates through the homography fixing the outer corners
// and returns them row-major.
func assignGrid(pts []r2.Point, pattern Pattern, origin, rowEnd, opposite, colEnd r2.Point) ([]r2.Point, error) {
	lastC, lastR := float64(pattern.Cols-1), float64(pattern.Rows-1)
	h, err := transform.EstimateHomography(
		[]r2.Point{origin, rowEnd, opposite, colEnd},
		[]r2.Point{{X: 0, Y: 0}, {X: lastC, Y: 0}, {X: lastC, Y: lastR}, {X: 0, Y: lastR}},
	)
	if err != nil {
		return nil, utils.NewDetectionFailure("outer corners are degenerate: %v", err)
	}
	out := make([]r2.Point, len(pts))
	filled := make([]bool, len(pts))
	for _, p := range pts {
		g := h.Apply(p)
		c, r := math.Round(g.X), math.Round(g.Y)
		if math.Abs(g.X-c) > maxGridDeviation || math.Abs(g.Y-r) > maxGridDeviation ||
			c < 0 || r < 0 || c > lastC || r > lastR {
			return nil, utils.NewDetectionFailure("corner %v is off the %dx%d grid", p, pattern.Cols, pattern.Rows)
		}
		idx := int(r)*pattern.Cols + int(c)
		if filled[idx] {
			return nil, utils.NewDetectionFailure("two corners on grid cell (%v, %v)", c, r)
		}
		filled[idx] = true
		out[idx] = p
	}
	return out, nil
}
