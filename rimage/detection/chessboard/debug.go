package chessboard

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
)

// DrawCorners plots ordered corners on top of img: rows are joined by lines and the origin is red.
func DrawCorners(img image.Image, corners []r2.Point, pattern Pattern) image.Image {
	dc := gg.NewContextForImage(img)

	dc.SetLineWidth(1)
	dc.SetRGB(0, 1, 0)
	for r := 0; r < pattern.Rows; r++ {
		for c := 0; c+1 < pattern.Cols; c++ {
			i := r*pattern.Cols + c
			if i+1 >= len(corners) {
				break
			}
			dc.DrawLine(corners[i].X, corners[i].Y, corners[i+1].X, corners[i+1].Y)
			dc.Stroke()
		}
	}
	for i, pt := range corners {
		if i == 0 {
			dc.SetColor(color.RGBA{R: 255, A: 255})
		} else {
			dc.SetColor(color.RGBA{B: 255, A: 255})
		}
		dc.DrawPoint(pt.X, pt.Y, 2.5)
		dc.Fill()
	}
	return dc.Image()
}
