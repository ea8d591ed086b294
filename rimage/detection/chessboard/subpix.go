package chessboard

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/birdseye/rimage"
)

const (
	refineMaxIterations = 20
	refineEpsilon       = 0.01
)

// RefineCorners moves each corner to the point where the image gradients of its window are
// orthogonal to the offsets from it, as in OpenCV's cornerSubPix. Corners that would leave their
// window or whose window has no gradient structure are left unchanged.
func RefineCorners(gray *rimage.FloatImage, corners []r2.Point, win int) []r2.Point {
	gx, gy := rimage.Gradients(rimage.GaussianBlur(gray.Luminance(), 1))
	sigma := float64(win)
	out := make([]r2.Point, len(corners))
	for i, start := range corners {
		q := start
		for it := 0; it < refineMaxIterations; it++ {
			cx, cy := int(math.Round(q.X)), int(math.Round(q.Y))
			var a11, a12, a22, b1, b2 float64
			for dy := -win; dy <= win; dy++ {
				for dx := -win; dx <= win; dx++ {
					x, y := cx+dx, cy+dy
					if !gx.In(x, y) {
						continue
					}
					w := math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
					gxv, gyv := gx.Get(x, y, 0), gy.Get(x, y, 0)
					gxx, gxy, gyy := w*gxv*gxv, w*gxv*gyv, w*gyv*gyv
					a11 += gxx
					a12 += gxy
					a22 += gyy
					b1 += gxx*float64(x) + gxy*float64(y)
					b2 += gxy*float64(x) + gyy*float64(y)
				}
			}
			det := a11*a22 - a12*a12
			if det <= 1e-9*(a11+a22)*(a11+a22) {
				break
			}
			next := r2.Point{X: (a22*b1 - a12*b2) / det, Y: (a11*b2 - a12*b1) / det}
			if next.Sub(start).Norm() > float64(win) {
				q = start
				break
			}
			move := next.Sub(q).Norm()
			q = next
			if move < refineEpsilon {
				break
			}
		}
		out[i] = q
	}
	return out
}
