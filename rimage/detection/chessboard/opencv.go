//go:build opencv

package chessboard

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

type opencvStrategy struct{}

func (opencvStrategy) Name() string { return StrategyOpenCV }

// FindCorners runs OpenCV's chessboard finder and cornerSubPix.
func (opencvStrategy) FindCorners(_ context.Context, gray *rimage.FloatImage, pattern Pattern,
	cfg *DetectionConfiguration,
) ([]r2.Point, error) {
	img, ok := gray.ToImage().(*image.Gray)
	if !ok {
		return nil, utils.NewUnexpectedTypeError(&image.Gray{}, gray.ToImage())
	}
	m, err := gocv.NewMatFromBytes(gray.Height(), gray.Width(), gocv.MatTypeCV8UC1, img.Pix)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage
	if !gocv.FindChessboardCorners(m, image.Pt(pattern.Cols, pattern.Rows), &corners, flags) {
		return nil, utils.NewDetectionFailure("opencv found no %dx%d chessboard", pattern.Cols, pattern.Rows)
	}
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, refineMaxIterations, refineEpsilon)
	win := image.Pt(cfg.RefineWindow, cfg.RefineWindow)
	gocv.CornerSubPix(m, &corners, win, image.Pt(-1, -1), criteria)

	pts := make([]r2.Point, corners.Rows())
	for i := range pts {
		v := corners.GetVecfAt(i, 0)
		pts[i] = r2.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return pts, nil
}

func init() {
	registerStrategy(opencvStrategy{})
}
