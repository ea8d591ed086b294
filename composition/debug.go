package composition

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage"
)

// coveragePalette gives each camera an evenly spaced hue.
var coveragePalette = func() [rig.NumCameras]colorful.Color {
	var out [rig.NumCameras]colorful.Color
	for _, pos := range rig.Positions {
		out[pos] = colorful.Hcl(float64(pos)*360/rig.NumCameras, 0.7, 0.65).Clamped()
	}
	return out
}()

// RenderCoverage draws the blend weights of a plan: every canvas pixel is the weighted blend of
// the camera colors, uncovered pixels are black and the vehicle footprint is outlined.
func RenderCoverage(plan *Plan) image.Image {
	size := plan.Weights.Size
	dc := gg.NewContext(size.X, size.Y)
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			i := y*size.X + x
			var mixed colorful.Color
			var total float64
			for _, pos := range rig.Positions {
				w := plan.Weights.Weights[pos][i]
				if w == 0 {
					continue
				}
				if total == 0 {
					mixed = coveragePalette[pos]
				} else {
					mixed = mixed.BlendLab(coveragePalette[pos], w/(total+w))
				}
				total += w
			}
			if total == 0 {
				img.Set(x, y, color.Black)
				continue
			}
			img.Set(x, y, mixed.Clamped())
		}
	}
	dc.DrawImage(img, 0, 0)

	layout := plan.Snapshot.Layout()
	fp := layout.FootprintCanvas()
	rimage.DrawRectangleEmpty(dc, image.Rect(int(fp.X.Lo), int(fp.Y.Lo), int(fp.X.Hi), int(fp.Y.Hi)), color.White, 1)
	for _, pos := range rig.Positions {
		c := layout.GroundToCanvas(layout.BoardCenter(pos))
		rimage.DrawString(dc, pos.String(), image.Pt(int(c.X), int(c.Y)), color.White, 10)
	}
	return dc.Image()
}
