package composition

import (
	"image"

	"github.com/golang/geo/r2"

	"go.viam.com/birdseye/calibration"
	"go.viam.com/birdseye/rig"
)

// Coverage marks, per camera, the canvas pixels the camera contributes to.
type Coverage [rig.NumCameras][]bool

// BuildCoverage marks a canvas pixel as covered by a camera when its remap is valid, it lies
// outside the vehicle footprint and it is on the camera's side of the vehicle.
func BuildCoverage(layout *calibration.Layout, size image.Point, tables [rig.NumCameras]*RemapTable) Coverage {
	var out Coverage
	footprint := layout.Footprint()
	for _, pos := range rig.Positions {
		out[pos] = make([]bool, size.X*size.Y)
	}
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			i := y*size.X + x
			g := layout.CanvasToGround(r2.Point{X: float64(x), Y: float64(y)})
			if footprint.ContainsPoint(g) {
				continue
			}
			for _, pos := range rig.Positions {
				out[pos][i] = tables[pos].Valid[i] && layout.InHalfPlane(pos, g)
			}
		}
	}
	return out
}

// Count returns how many cameras cover pixel i.
func (c *Coverage) Count(i int) int {
	n := 0
	for _, pos := range rig.Positions {
		if c[pos][i] {
			n++
		}
	}
	return n
}

// Overlap returns the pixels covered by both cameras of a pair.
func (c *Coverage) Overlap(pair rig.Pair) []int {
	var out []int
	for i, a := range c[pair.A] {
		if a && c[pair.B][i] {
			out = append(out, i)
		}
	}
	return out
}
