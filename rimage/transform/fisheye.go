package transform

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/rimage"
	"go.viam.com/birdseye/utils"
)

// Project maps a point in the camera frame to a distorted pixel. Points at the optical centre or
// beyond the invertible angle of the distortion model cannot be projected.
func (params *CameraParameters) Project(pc r3.Vector) (r2.Point, error) {
	if pc.Norm() < 1e-12 {
		return r2.Point{}, newGeometryError("cannot project the optical centre")
	}
	r := math.Hypot(pc.X, pc.Y)
	theta := math.Atan2(r, pc.Z)
	if theta > params.Distortion.MaxTheta() {
		return r2.Point{}, newGeometryError("point at %.3f rad is outside the field of view", theta)
	}
	if r < 1e-12 {
		return r2.Point{X: params.Ppx, Y: params.Ppy}, nil
	}
	scale := params.Distortion.DistortTheta(theta) / r
	return params.PointToPixel(r2.Point{X: pc.X * scale, Y: pc.Y * scale}), nil
}

// SpaceToPlane transforms a world point into the camera frame with (rvec, tvec) and projects it.
func (params *CameraParameters) SpaceToPlane(pw, rvec, tvec r3.Vector) (r2.Point, error) {
	return params.Project(RotateVector(rvec, pw).Add(tvec))
}

// BackprojectSymmetric recovers the incidence angle theta and the azimuth phi of a point on the
// distorted normalized plane.
func (params *CameraParameters) BackprojectSymmetric(pu r2.Point) (theta, phi float64, err error) {
	thetaD := pu.Norm()
	if thetaD < 1e-12 {
		return 0, 0, nil
	}
	theta, err = params.Distortion.UndistortTheta(thetaD)
	if err != nil {
		return 0, 0, err
	}
	return theta, math.Atan2(pu.Y, pu.X), nil
}

// LiftProjective returns the unit ray in the camera frame seen by a distorted pixel.
func (params *CameraParameters) LiftProjective(p r2.Point) (r3.Vector, error) {
	theta, phi, err := params.BackprojectSymmetric(params.PixelToPoint(p))
	if err != nil {
		return r3.Vector{}, err
	}
	sinTheta := math.Sin(theta)
	return r3.Vector{X: sinTheta * math.Cos(phi), Y: sinTheta * math.Sin(phi), Z: math.Cos(theta)}, nil
}

// DistortNormalized maps a point of the pinhole normalized plane to its distorted pixel.
func (params *CameraParameters) DistortNormalized(p r2.Point) (r2.Point, error) {
	return params.Project(r3.Vector{X: p.X, Y: p.Y, Z: 1})
}

// UndistortPoint maps a distorted pixel to the pinhole normalized plane. Rays at or behind 90
// degrees have no pinhole image.
func (params *CameraParameters) UndistortPoint(p r2.Point) (r2.Point, error) {
	ray, err := params.LiftProjective(p)
	if err != nil {
		return r2.Point{}, err
	}
	if ray.Z <= 1e-9 {
		return r2.Point{}, newGeometryError("pixel %v looks at or behind the image plane", p)
	}
	return r2.Point{X: ray.X / ray.Z, Y: ray.Y / ray.Z}, nil
}

// UndistortPoints maps distorted pixels to pixels of the pinhole camera target.
func (params *CameraParameters) UndistortPoints(pts []r2.Point, target *PinholeCameraIntrinsics) ([]r2.Point, error) {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		n, err := params.UndistortPoint(p)
		if err != nil {
			return nil, err
		}
		out[i] = target.PointToPixel(n)
	}
	return out, nil
}

// DistortionMap is a function that transforms the undistorted pixel (u,v) of the pinhole camera
// target to the distorted pixel (x,y) of this camera. ok is false when no source pixel exists.
func (params *CameraParameters) DistortionMap(target *PinholeCameraIntrinsics) func(u, v float64) (x, y float64, ok bool) {
	return func(u, v float64) (float64, float64, bool) {
		p, err := params.DistortNormalized(target.PixelToPoint(r2.Point{X: u, Y: v}))
		if err != nil {
			return 0, 0, false
		}
		return p.X, p.Y, true
	}
}

// UndistortImage takes an input image and creates a new image as seen by the pinhole camera target.
// A bilinear interpolation is used to interpolate values between image pixels and pixels without a
// source are zero.
func (params *CameraParameters) UndistortImage(ctx context.Context, img *rimage.FloatImage,
	target *PinholeCameraIntrinsics,
) (*rimage.FloatImage, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	// Check dimensions, they should be equal between the image and what the intrinsics expect
	if params.Width != img.Width() || params.Height != img.Height() {
		return nil, utils.NewRuntimeMismatch("img dimension and intrinsics don't match Image(%d,%d) != Intrinsics(%d,%d)",
			img.Width(), img.Height(), params.Width, params.Height)
	}
	out := rimage.NewFloatImage(target.Width, target.Height, img.Channels())
	distortionMap := params.DistortionMap(target)
	err := utils.ParallelForEachRow(ctx, target.Height, func(v int) {
		sample := make([]float64, img.Channels())
		for u := 0; u < target.Width; u++ {
			x, y, ok := distortionMap(float64(u), float64(v))
			if !ok || !img.Bilinear(x, y, sample) {
				continue
			}
			copy(out.Pixel(u, v), sample)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
