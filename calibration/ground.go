package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/rig"
)

// CameraToGround intersects the ray seen by a distorted frame pixel with the ground and returns the
// ground point in meters.
func (s *Snapshot) CameraToGround(pos rig.Position, pixel r2.Point) (r2.Point, error) {
	if !pos.Valid() {
		return r2.Point{}, errors.Errorf("invalid camera position %d", int(pos))
	}
	cam := s.Cameras[pos]
	ray, err := cam.Intrinsics.LiftProjective(pixel)
	if err != nil {
		return r2.Point{}, err
	}
	return cam.Pose.RayToGround(ray)
}

// CanvasToGround returns the ground point in meters under a canvas pixel.
func (s *Snapshot) CanvasToGround(q r2.Point) r2.Point {
	return s.Layout().CanvasToGround(q)
}

// CameraToCanvas maps a distorted frame pixel through the undistortion and the homography.
func (s *Snapshot) CameraToCanvas(pos rig.Position, pixel r2.Point) (r2.Point, error) {
	if !pos.Valid() {
		return r2.Point{}, errors.Errorf("invalid camera position %d", int(pos))
	}
	cam := s.Cameras[pos]
	pts, err := cam.Intrinsics.UndistortPoints([]r2.Point{pixel}, cam.NewK)
	if err != nil {
		return r2.Point{}, err
	}
	return cam.Homography.Apply(pts[0]), nil
}
