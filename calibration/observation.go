package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/birdseye/rig"
	"go.viam.com/birdseye/rimage/transform"
	"go.viam.com/birdseye/utils"
)

// Observation is one camera's detected chessboard in every coordinate system calibration needs.
// All slices are in the detector's row-major corner order.
type Observation struct {
	Position rig.Position
	Camera   *transform.CameraParameters       // fisheye camera at the frame size
	NewK     *transform.PinholeCameraIntrinsics // pinhole camera of the undistorted image

	Raw         []r2.Point // distorted frame pixels
	Undistorted []r2.Point // pixels of NewK
	Canvas      []r2.Point // homography targets
	Ground      []r2.Point // meters
}

// NewObservationFromUndistorted builds an observation from corners found in the undistorted image.
func NewObservationFromUndistorted(
	pos rig.Position,
	cam *transform.CameraParameters,
	newK *transform.PinholeCameraIntrinsics,
	undistorted []r2.Point,
	layout *Layout,
) (*Observation, error) {
	raw := make([]r2.Point, len(undistorted))
	for i, p := range undistorted {
		q, err := cam.DistortNormalized(newK.PixelToPoint(p))
		if err != nil {
			return nil, errors.Wrapf(err, "%s corner %d", pos, i)
		}
		raw[i] = q
	}
	return newObservation(pos, cam, newK, raw, undistorted, layout)
}

// NewObservationFromRaw builds an observation from corners in the distorted frame.
func NewObservationFromRaw(
	pos rig.Position,
	cam *transform.CameraParameters,
	newK *transform.PinholeCameraIntrinsics,
	raw []r2.Point,
	layout *Layout,
) (*Observation, error) {
	undistorted, err := cam.UndistortPoints(raw, newK)
	if err != nil {
		return nil, errors.Wrapf(err, "%s corners", pos)
	}
	return newObservation(pos, cam, newK, raw, undistorted, layout)
}

func newObservation(
	pos rig.Position,
	cam *transform.CameraParameters,
	newK *transform.PinholeCameraIntrinsics,
	raw, undistorted []r2.Point,
	layout *Layout,
) (*Observation, error) {
	ground := layout.GroundPoints(pos)
	if len(raw) != len(ground) {
		return nil, utils.NewDetectionFailure("%s camera has %d corners, the layout has %d", pos, len(raw), len(ground))
	}
	return &Observation{
		Position:    pos,
		Camera:      cam,
		NewK:        newK,
		Raw:         raw,
		Undistorted: undistorted,
		Canvas:      layout.CanvasPoints(pos),
		Ground:      ground,
	}, nil
}

// Normalized returns the undistorted corners on the pinhole normalized plane.
func (o *Observation) Normalized() []r2.Point {
	out := make([]r2.Point, len(o.Undistorted))
	for i, p := range o.Undistorted {
		out[i] = o.NewK.PixelToPoint(p)
	}
	return out
}

// Object returns the ground points as 3D points on the Z = 0 plane.
func (o *Observation) Object() []r3.Vector {
	out := make([]r3.Vector, len(o.Ground))
	for i, g := range o.Ground {
		out[i] = r3.Vector{X: g.X, Y: g.Y}
	}
	return out
}
